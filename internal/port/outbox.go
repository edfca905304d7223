package port

import (
	"context"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
)

// QueueRepository stores notification work items.
// Status changes are conditional writes; a false result means another writer got there first.
type QueueRepository interface {
	// Enqueue inserts a Pending entry on behalf of an upstream producer.
	Enqueue(ctx context.Context, entry *domain.NotificationQueueEntry) error
	// ListByStatus returns up to limit entries in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.NotificationQueueEntry, error)
	// Claim moves an entry from Pending to Processing if it is still Pending.
	Claim(ctx context.Context, id string) (bool, error)
	// Transition moves an entry from one status to another, guarded on the current status.
	// retryDelta is added to retryCount in the same write.
	Transition(ctx context.Context, id string, from, to domain.QueueStatus, retryDelta int) (bool, error)
	// ReleaseStale returns Processing entries untouched since before to Pending.
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
}
