package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/org/assetwatch/internal/storage"
)

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": "1.0.0",
	})
}

// SettingsGetHandler handles GET /v1/settings
func (s *Server) SettingsGetHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.ListSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": settings})
}

// SettingsPutHandler handles PUT /v1/settings
func (s *Server) SettingsPutHandler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req) == 0 {
		writeError(w, http.StatusBadRequest, "expected a non-empty object of key/value pairs")
		return
	}

	for k, v := range req {
		if err := s.store.SetSetting(r.Context(), k, v); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(req)})
}

// ActivityHandler handles GET /v1/sys/activity
func (s *Server) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ActivityFilter{
		Username: q.Get("username"),
		Path:     q.Get("path"),
		Limit:    100,
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
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp (want RFC3339)")
			return
		}
		filter.Since = &t
	}

	entries, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			entries = nil
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"request_id":       e.RequestID,
			"timestamp":        e.Timestamp,
			"username":         e.Username,
			"operation":        e.Operation,
			"path":             e.Path,
			"status":           e.Status,
			"response_code":    e.ResponseCode,
			"response_time_ms": e.ResponseTimeMs,
			"client_ip":        e.ClientIP,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"entries": out}})
}
