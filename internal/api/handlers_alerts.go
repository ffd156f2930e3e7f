package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/org/assetwatch/internal/storage"
)

// AlertListHandler handles GET /v1/alerts
func (s *Server) AlertListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	openOnly := q.Get("open") == "true"
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	alerts, err := s.store.ListAlerts(r.Context(), openOnly, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"alerts": alerts}})
}

// AlertAckHandler handles POST /v1/alerts/{id}/ack
func (s *Server) AlertAckHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	username := ""
	if sess := sessionFromCtx(r.Context()); sess != nil {
		username = sess.Username
	}
	if err := s.store.AckAlert(r.Context(), id, username); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found or already acknowledged")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
