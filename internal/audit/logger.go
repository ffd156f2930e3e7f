package audit

import (
	"context"
	"time"

	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// Logger writes structured activity entries.
type Logger struct {
	store storage.Backend
}

// NewLogger creates an activity Logger.
func NewLogger(store storage.Backend) *Logger {
	return &Logger{store: store}
}

// LogRequest records an API request to the activity log.
// Fire and forget — activity failures must not break request flow.
func (l *Logger) LogRequest(ctx context.Context, entry *models.ActivityEntry) {
	entry.Timestamp = time.Now().UTC()
	_ = l.store.WriteActivityEntry(ctx, entry)
}

// Query retrieves paginated activity entries.
func (l *Logger) Query(ctx context.Context, filter storage.ActivityFilter) ([]*models.ActivityEntry, error) {
	return l.store.QueryActivity(ctx, filter)
}
