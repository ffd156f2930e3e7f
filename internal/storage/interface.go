package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/assetwatch/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when trying to create a resource that already exists.
var ErrAlreadyExists = errors.New("already exists")

// Backend defines the persistence interface for the asset service.
type Backend interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, username string) error
	TouchUserLogin(ctx context.Context, username string, at time.Time) error

	// Sessions (keyed by SHA-256 hash of the plaintext token)
	WriteSession(ctx context.Context, session *models.Session, tokenHash string) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeUserSessions(ctx context.Context, username string) error

	// Devices
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context, filter models.DeviceFilter) ([]*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id string) error
	TouchDevice(ctx context.Context, id, status string, seenAt time.Time) error

	// Network discovery
	WriteDiscoveryRecords(ctx context.Context, records []*models.DiscoveryRecord) error
	ListDiscoveryRecords(ctx context.Context, sweepID string, limit int) ([]*models.DiscoveryRecord, error)
	LatestSweepID(ctx context.Context) (string, error)

	// Website blocking
	AddBlockedSite(ctx context.Context, site *models.BlockedSite) error
	RemoveBlockedSite(ctx context.Context, hostname string) error
	ListBlockedSites(ctx context.Context) ([]*models.BlockedSite, error)

	// Router
	GetRouterConfig(ctx context.Context) (*models.RouterConfig, error)
	WriteRouterConfig(ctx context.Context, cfg *models.RouterConfig) error

	// Alerts
	CreateAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, openOnly bool, limit int) ([]*models.Alert, error)
	AckAlert(ctx context.Context, id int64, username string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	// Activity log
	WriteActivityEntry(ctx context.Context, entry *models.ActivityEntry) error
	QueryActivity(ctx context.Context, filter ActivityFilter) ([]*models.ActivityEntry, error)

	// Metrics helpers
	CountDevices(ctx context.Context) (int64, error)
	CountActiveSessions(ctx context.Context) (int64, error)
	CountOpenAlerts(ctx context.Context) (int64, error)

	// Lifecycle
	Close()
}

// ActivityFilter specifies query parameters for activity log retrieval.
type ActivityFilter struct {
	Username string
	Path     string
	Since    *time.Time
	Limit    int
	Offset   int
}
