// Package netguard covers the network-facing controls: discovery sweeps,
// router configuration and the website block list.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// ErrInvalidHostname is returned for block rules that do not name a host.
var ErrInvalidHostname = errors.New("invalid hostname")

// Service implements network discovery, router and blocking operations.
type Service struct {
	store storage.Backend
}

// NewService creates a netguard Service backed by the given storage.
func NewService(store storage.Backend) *Service {
	return &Service{store: store}
}

// LatestDiscovery returns the records of the most recent sweep.
func (s *Service) LatestDiscovery(ctx context.Context, limit int) ([]*models.DiscoveryRecord, error) {
	sweepID, err := s.store.LatestSweepID(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.store.ListDiscoveryRecords(ctx, sweepID, limit)
}

// RecordSweep stores the results of a discovery sweep under a fresh sweep
// ID and returns it. The actual probing is done by an external agent that
// posts its findings here. Hosts absent from the previous sweep raise an
// info alert.
func (s *Service) RecordSweep(ctx context.Context, records []*models.DiscoveryRecord) (string, error) {
	known := s.knownMACs(ctx)

	sweepID := uuid.NewString()
	now := time.Now().UTC()
	for _, r := range records {
		r.SweepID = sweepID
		if r.SeenAt.IsZero() {
			r.SeenAt = now
		}
	}
	if err := s.store.WriteDiscoveryRecords(ctx, records); err != nil {
		return "", fmt.Errorf("recording sweep: %w", err)
	}

	if known != nil {
		for _, r := range records {
			mac := canonicalMAC(r.MAC)
			if mac == "" || known[mac] {
				continue
			}
			name := r.Hostname
			if name == "" {
				name = r.IPAddress
			}
			// Alert failures do not fail the sweep.
			s.store.CreateAlert(ctx, &models.Alert{ //nolint:errcheck
				Severity:  models.SeverityInfo,
				Message:   fmt.Sprintf("new host %s (%s) on the network", name, mac),
				CreatedAt: now,
			})
		}
	}
	return sweepID, nil
}

// knownMACs returns the MAC set of the previous sweep, or nil when no sweep
// has run yet. The very first sweep must not alert on every host it finds.
func (s *Service) knownMACs(ctx context.Context) map[string]bool {
	prevID, err := s.store.LatestSweepID(ctx)
	if err != nil {
		return nil
	}
	prev, err := s.store.ListDiscoveryRecords(ctx, prevID, 0)
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(prev))
	for _, r := range prev {
		if mac := canonicalMAC(r.MAC); mac != "" {
			known[mac] = true
		}
	}
	return known
}

func canonicalMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

// RouterConfig returns the current router settings.
func (s *Service) RouterConfig(ctx context.Context) (*models.RouterConfig, error) {
	return s.store.GetRouterConfig(ctx)
}

// UpdateRouterConfig stores new router settings.
func (s *Service) UpdateRouterConfig(ctx context.Context, cfg *models.RouterConfig) error {
	if strings.TrimSpace(cfg.Address) == "" {
		return errors.New("router address is required")
	}
	return s.store.WriteRouterConfig(ctx, cfg)
}

// BlockedSites lists the current block rules.
func (s *Service) BlockedSites(ctx context.Context) ([]*models.BlockedSite, error) {
	return s.store.ListBlockedSites(ctx)
}

// BlockSite adds a block rule for the given site. Accepts bare hostnames
// or full URLs; the stored rule is the normalized hostname.
func (s *Service) BlockSite(ctx context.Context, raw, reason, addedBy string) (*models.BlockedSite, error) {
	hostname, err := NormalizeHostname(raw)
	if err != nil {
		return nil, err
	}
	site := &models.BlockedSite{
		Hostname:  hostname,
		Reason:    reason,
		AddedBy:   addedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddBlockedSite(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

// UnblockSite removes the block rule for the given site.
func (s *Service) UnblockSite(ctx context.Context, raw string) error {
	hostname, err := NormalizeHostname(raw)
	if err != nil {
		return err
	}
	return s.store.RemoveBlockedSite(ctx, hostname)
}

// NormalizeHostname reduces a URL or hostname to a lowercase host with no
// scheme, port, path or leading "www.".
func NormalizeHostname(raw string) (string, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return "", ErrInvalidHostname
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return "", ErrInvalidHostname
		}
		raw = u.Hostname()
	} else {
		// Strip any path or port from a bare host.
		if i := strings.IndexAny(raw, "/?#"); i >= 0 {
			raw = raw[:i]
		}
		if i := strings.LastIndex(raw, ":"); i >= 0 && !strings.Contains(raw, "]") {
			raw = raw[:i]
		}
	}
	raw = strings.TrimPrefix(raw, "www.")
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", ErrInvalidHostname
	}
	return raw, nil
}
