package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/org/assetwatch/internal/inventory"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

type devicePayload struct {
	Name      string   `json:"name" validate:"required,min=1,max=255"`
	Type      string   `json:"type" validate:"required,min=1,max=64"`
	IPAddress string   `json:"ip_address" validate:"omitempty,ip"`
	MAC       string   `json:"mac" validate:"omitempty,mac"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Status    string   `json:"status" validate:"omitempty,oneof=online offline unknown"`
}

// DeviceListHandler handles GET /v1/devices
func (s *Server) DeviceListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.DeviceFilter{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Query:  q.Get("q"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	devices, err := s.devices.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshGauges(r)
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"devices": devices}})
}

// DeviceGetHandler handles GET /v1/devices/{id}
func (s *Server) DeviceGetHandler(w http.ResponseWriter, r *http.Request) {
	device, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": device})
}

// DeviceCreateHandler handles POST /v1/devices
func (s *Server) DeviceCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req devicePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device := &models.Device{
		Name:      req.Name,
		Type:      req.Type,
		IPAddress: req.IPAddress,
		MAC:       req.MAC,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Status:    req.Status,
	}
	if err := s.devices.Create(r.Context(), device); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "device with this MAC already exists")
			return
		}
		if errors.Is(err, inventory.ErrInvalidDevice) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": device})
}

// DeviceUpdateHandler handles PUT /v1/devices/{id}
func (s *Server) DeviceUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var req devicePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device := &models.Device{
		ID:        chi.URLParam(r, "id"),
		Name:      req.Name,
		Type:      req.Type,
		IPAddress: req.IPAddress,
		MAC:       req.MAC,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Status:    req.Status,
	}
	if err := s.devices.Update(r.Context(), device); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		if errors.Is(err, inventory.ErrInvalidDevice) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": device})
}

// DeviceDeleteHandler handles DELETE /v1/devices/{id}
func (s *Server) DeviceDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeviceScanHandler handles POST /v1/devices/scan
func (s *Server) DeviceScanHandler(w http.ResponseWriter, r *http.Request) {
	online, offline, err := s.devices.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"online": online, "offline": offline},
	})
}
