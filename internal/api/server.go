package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/org/assetwatch/internal/audit"
	"github.com/org/assetwatch/internal/auth"
	"github.com/org/assetwatch/internal/inventory"
	"github.com/org/assetwatch/internal/netguard"
	"github.com/org/assetwatch/internal/rbac"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string
	TLSCertFile    string
	TLSKeyFile     string
	DBUrl          string
	MigrationsDir  string
	AllowedOrigins []string
	DurableTTL     time.Duration
	VolatileTTL    time.Duration
}

// ActivityLogger is the interface the server needs from an activity logger.
type ActivityLogger interface {
	LogRequest(ctx context.Context, entry *models.ActivityEntry)
	Query(ctx context.Context, filter storage.ActivityFilter) ([]*models.ActivityEntry, error)
}

// Server is the API server.
type Server struct {
	store    storage.Backend
	sessions *auth.SessionService
	policy   *rbac.AccessPolicy
	devices  *inventory.Service
	network  *netguard.Service
	auditor  ActivityLogger
	cfg      Config
	httpSrv  *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(store storage.Backend, cfg Config) *Server {
	return &Server{
		store:    store,
		sessions: auth.NewSessionService(store, cfg.DurableTTL, cfg.VolatileTTL),
		policy:   rbac.NewAccessPolicy(nil),
		devices:  inventory.NewService(store),
		network:  netguard.NewService(store),
		auditor:  audit.NewLogger(store),
		cfg:      cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", SessionHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200).middleware)
	r.Use(activityMiddleware(s.auditor))

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Post("/v1/auth/login", s.LoginHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.sessions))

		r.Post("/v1/auth/logout", s.LogoutHandler)
		r.Get("/v1/auth/whoami", s.WhoamiHandler)

		// Devices
		r.With(s.requireCapability(rbac.CapViewDevices)).Get("/v1/devices", s.DeviceListHandler)
		r.With(s.requireCapability(rbac.CapViewDevices)).Get("/v1/devices/{id}", s.DeviceGetHandler)
		r.With(s.requireCapability(rbac.CapEditDevices)).Post("/v1/devices", s.DeviceCreateHandler)
		r.With(s.requireCapability(rbac.CapEditDevices)).Put("/v1/devices/{id}", s.DeviceUpdateHandler)
		r.With(s.requireCapability(rbac.CapDeleteDevices)).Delete("/v1/devices/{id}", s.DeviceDeleteHandler)
		r.With(s.requireCapability(rbac.CapScanDevices)).Post("/v1/devices/scan", s.DeviceScanHandler)

		// Network
		r.With(s.requireCapability(rbac.CapViewNetwork)).Get("/v1/network/discovery", s.DiscoveryListHandler)
		r.With(s.requireCapability(rbac.CapManageNetwork)).Post("/v1/network/discovery", s.DiscoverySweepHandler)
		r.With(s.requireCapability(rbac.CapConfigureRouter)).Get("/v1/network/router", s.RouterGetHandler)
		r.With(s.requireCapability(rbac.CapConfigureRouter)).Put("/v1/network/router", s.RouterPutHandler)

		// Website blocking
		r.With(s.requireCapability(rbac.CapViewNetwork)).Get("/v1/blocking/sites", s.BlockedListHandler)
		r.With(s.requireCapability(rbac.CapBlockWebsites)).Post("/v1/blocking/sites", s.BlockSiteHandler)
		r.With(s.requireCapability(rbac.CapBlockWebsites)).Delete("/v1/blocking/sites/{hostname}", s.UnblockSiteHandler)

		// Alerts
		r.With(s.requireCapability(rbac.CapViewAlerts)).Get("/v1/alerts", s.AlertListHandler)
		r.With(s.requireCapability(rbac.CapViewAlerts)).Post("/v1/alerts/{id}/ack", s.AlertAckHandler)

		// Users
		r.With(s.requireCapability(rbac.CapManageUsers)).Get("/v1/users", s.UserListHandler)
		r.With(s.requireCapability(rbac.CapManageUsers)).Post("/v1/users", s.UserCreateHandler)
		r.With(s.requireCapability(rbac.CapManageUsers)).Delete("/v1/users/{username}", s.UserDeleteHandler)

		// Settings
		r.With(s.requireCapability(rbac.CapManageSettings)).Get("/v1/settings", s.SettingsGetHandler)
		r.With(s.requireCapability(rbac.CapManageSettings)).Put("/v1/settings", s.SettingsPutHandler)

		// Activity (reports screen)
		r.With(s.requireCapability(rbac.CapViewReports)).Get("/v1/sys/activity", s.ActivityHandler)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) > 0 {
		return s.cfg.AllowedOrigins
	}
	return []string{"http://localhost:3000"}
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
