package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/org/assetwatch/internal/netguard"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// DiscoveryListHandler handles GET /v1/network/discovery
func (s *Server) DiscoveryListHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.network.LatestDiscovery(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"records": records}})
}

// DiscoverySweepHandler handles POST /v1/network/discovery.
// The scanning agent posts its sweep results here.
func (s *Server) DiscoverySweepHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []struct {
			IPAddress string `json:"ip_address" validate:"required,ip"`
			MAC       string `json:"mac"`
			Hostname  string `json:"hostname"`
			Vendor    string `json:"vendor"`
			OpenPorts []int  `json:"open_ports"`
		} `json:"records" validate:"required,min=1,dive"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	records := make([]*models.DiscoveryRecord, len(req.Records))
	for i, rec := range req.Records {
		records[i] = &models.DiscoveryRecord{
			IPAddress: rec.IPAddress,
			MAC:       rec.MAC,
			Hostname:  rec.Hostname,
			Vendor:    rec.Vendor,
			OpenPorts: rec.OpenPorts,
		}
	}

	sweepID, err := s.network.RecordSweep(r.Context(), records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"sweep_id": sweepID, "hosts": len(records)},
	})
}

// RouterGetHandler handles GET /v1/network/router
func (s *Server) RouterGetHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.network.RouterConfig(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "router not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// RouterPutHandler handles PUT /v1/network/router
func (s *Server) RouterPutHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address    string   `json:"address" validate:"required"`
		AdminUser  string   `json:"admin_user"`
		DNSServers []string `json:"dns_servers" validate:"dive,ip"`
		DHCPRange  string   `json:"dhcp_range"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := &models.RouterConfig{
		Address:    req.Address,
		AdminUser:  req.AdminUser,
		DNSServers: req.DNSServers,
		DHCPRange:  req.DHCPRange,
	}
	if sess := sessionFromCtx(r.Context()); sess != nil {
		cfg.UpdatedBy = sess.Username
	}
	if err := s.network.UpdateRouterConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// BlockedListHandler handles GET /v1/blocking/sites
func (s *Server) BlockedListHandler(w http.ResponseWriter, r *http.Request) {
	sites, err := s.network.BlockedSites(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"sites": sites}})
}

// BlockSiteHandler handles POST /v1/blocking/sites
func (s *Server) BlockSiteHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Site   string `json:"site" validate:"required"`
		Reason string `json:"reason" validate:"max=512"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addedBy := ""
	if sess := sessionFromCtx(r.Context()); sess != nil {
		addedBy = sess.Username
	}
	site, err := s.network.BlockSite(r.Context(), req.Site, req.Reason, addedBy)
	if err != nil {
		if errors.Is(err, netguard.ErrInvalidHostname) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": site})
}

// UnblockSiteHandler handles DELETE /v1/blocking/sites/{hostname}
func (s *Server) UnblockSiteHandler(w http.ResponseWriter, r *http.Request) {
	hostname, err := url.PathUnescape(chi.URLParam(r, "hostname"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hostname")
		return
	}
	if err := s.network.UnblockSite(r.Context(), hostname); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site is not blocked")
			return
		}
		if errors.Is(err, netguard.ErrInvalidHostname) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
