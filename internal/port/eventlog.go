package port

import (
	"context"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
)

// EventLog is the append-only delivery and feedback audit trail.
type EventLog interface {
	Append(ctx context.Context, event domain.NotificationEvent) error
	ListByNotification(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error)
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]domain.NotificationEvent, error)
	ListRange(ctx context.Context, from, to time.Time, limit int) ([]domain.NotificationEvent, error)
	// CountSince aggregates email events with a timestamp at or after since.
	CountSince(ctx context.Context, since time.Time) (domain.EventCounts, error)
	// PruneExpired removes events whose retention horizon is before now.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}
