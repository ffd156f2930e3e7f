package api

import (
	"errors"
	"net/http"

	"github.com/org/assetwatch/internal/auth"
	"github.com/org/assetwatch/internal/rbac"
)

// LoginHandler handles POST /v1/auth/login
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username" validate:"required,min=1,max=128"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, plaintext, err := s.sessions.Login(r.Context(), req.Username, req.Password, req.RememberMe)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			loginFailures.Inc()
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	role := rbac.ParseRole(sess.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"session_token": plaintext,
			"username":      sess.Username,
			"role":          sess.Role,
			"durable":       sess.Durable,
			"expires_at":    sess.ExpiresAt,
			"pages":         s.allowedPages(role),
		},
	})
}

// LogoutHandler handles POST /v1/auth/logout
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), r.Header.Get(SessionHeader)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The SPA router navigates to /login on its side.
	writeJSON(w, http.StatusOK, map[string]any{"redirect": "/login"})
}

// WhoamiHandler handles GET /v1/auth/whoami
func (s *Server) WhoamiHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	role := rbac.ParseRole(sess.Role)
	caps := []string{}
	for _, c := range []rbac.Capability{
		rbac.CapViewDevices, rbac.CapEditDevices, rbac.CapDeleteDevices,
		rbac.CapScanDevices, rbac.CapViewNetwork, rbac.CapManageNetwork,
		rbac.CapConfigureRouter, rbac.CapBlockWebsites, rbac.CapViewAlerts,
		rbac.CapViewReports, rbac.CapManageUsers, rbac.CapManageSettings,
	} {
		if s.policy.Allows(role, c) {
			caps = append(caps, string(c))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"username":     sess.Username,
			"role":         sess.Role,
			"durable":      sess.Durable,
			"created_at":   sess.CreatedAt,
			"expires_at":   sess.ExpiresAt,
			"capabilities": caps,
			"pages":        s.allowedPages(role),
		},
	})
}

func (s *Server) allowedPages(role rbac.Role) []string {
	pages := []string{}
	for _, p := range rbac.DefaultPages()[role] {
		if s.policy.PageAllowed(role, p) {
			pages = append(pages, p)
		}
	}
	return pages
}
