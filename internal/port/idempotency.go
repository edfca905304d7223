package port

import (
	"context"
	"time"
)

// IdempotencyStore records processed message keys so redelivered messages can be skipped.
type IdempotencyStore interface {
	// Check returns true if the key was already processed.
	Check(ctx context.Context, key string) (bool, error)
	// Save records a processed key for ttl.
	Save(ctx context.Context, key string, ttl time.Duration) error
}
