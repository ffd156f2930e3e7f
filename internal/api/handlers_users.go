package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/org/assetwatch/internal/auth"
	"github.com/org/assetwatch/internal/rbac"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// UserListHandler handles GET /v1/users
func (s *Server) UserListHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"users": users}})
}

// UserCreateHandler handles POST /v1/users
func (s *Server) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required,min=1,max=128,alphanumunicode"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := rbac.ParseRole(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role: "+req.Role)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         string(role),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": user})
}

// UserDeleteHandler handles DELETE /v1/users/{username}
func (s *Server) UserDeleteHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if sess := sessionFromCtx(r.Context()); sess != nil && sess.Username == username {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := s.store.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Deleted users must not ride out their existing sessions.
	if err := s.sessions.RevokeUser(r.Context(), username); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
