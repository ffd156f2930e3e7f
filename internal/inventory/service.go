package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// ErrInvalidDevice is returned when a device payload fails validation.
var ErrInvalidDevice = errors.New("invalid device")

// Service implements device inventory operations over storage.
type Service struct {
	store storage.Backend
}

// NewService creates an inventory Service backed by the given storage.
func NewService(store storage.Backend) *Service {
	return &Service{store: store}
}

// List returns devices matching the filter.
func (s *Service) List(ctx context.Context, filter models.DeviceFilter) ([]*models.Device, error) {
	return s.store.ListDevices(ctx, filter)
}

// Get returns a single device by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Device, error) {
	return s.store.GetDevice(ctx, id)
}

// Create registers a new device and assigns it an ID.
func (s *Service) Create(ctx context.Context, d *models.Device) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	now := time.Now().UTC()
	d.ID = uuid.NewString()
	d.MAC = normalizeMAC(d.MAC)
	if d.Status == "" {
		d.Status = models.DeviceUnknown
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	return s.store.CreateDevice(ctx, d)
}

// Update replaces the mutable fields of an existing device.
func (s *Service) Update(ctx context.Context, d *models.Device) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	d.MAC = normalizeMAC(d.MAC)
	return s.store.UpdateDevice(ctx, d)
}

// Delete removes a device from the inventory.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteDevice(ctx, id)
}

// Scan reconciles the inventory against the latest discovery sweep:
// devices whose MAC appeared in the sweep are marked online with a fresh
// last-seen timestamp, the rest offline. Returns counts of each.
func (s *Service) Scan(ctx context.Context) (online, offline int, err error) {
	sweepID, err := s.store.LatestSweepID(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, 0, errors.New("no discovery sweep has run yet")
		}
		return 0, 0, err
	}
	records, err := s.store.ListDiscoveryRecords(ctx, sweepID, 0)
	if err != nil {
		return 0, 0, err
	}
	seen := make(map[string]time.Time, len(records))
	for _, r := range records {
		if mac := normalizeMAC(r.MAC); mac != "" {
			seen[mac] = r.SeenAt
		}
	}

	devices, err := s.store.ListDevices(ctx, models.DeviceFilter{})
	if err != nil {
		return 0, 0, err
	}
	now := time.Now().UTC()
	for _, d := range devices {
		if at, ok := seen[normalizeMAC(d.MAC)]; ok {
			if err := s.store.TouchDevice(ctx, d.ID, models.DeviceOnline, at); err != nil {
				return online, offline, err
			}
			online++
			continue
		}
		if d.Status != models.DeviceOffline {
			wasOnline := d.Status == models.DeviceOnline
			if err := s.store.TouchDevice(ctx, d.ID, models.DeviceOffline, now); err != nil {
				return online, offline, err
			}
			if wasOnline {
				// A failed alert write does not abort the scan.
				s.store.CreateAlert(ctx, &models.Alert{ //nolint:errcheck
					Severity:  models.SeverityWarning,
					Message:   fmt.Sprintf("device %s went offline", d.Name),
					DeviceID:  &d.ID,
					CreatedAt: now,
				})
			}
		}
		offline++
	}
	return online, offline, nil
}

func normalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}
