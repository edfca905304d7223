package port

import (
	"context"

	"github.com/strogmv/renodesk/internal/domain"
)

// MetricsRepository stores daily reputation records.
type MetricsRepository interface {
	// Increment atomically adds delta to a counter, creating the day's record if absent.
	Increment(ctx context.Context, date string, counter domain.Counter, delta int64) error
	// Save overwrites the day's record.
	Save(ctx context.Context, m domain.ReputationMetrics) error
	FindByDate(ctx context.Context, date string) (*domain.ReputationMetrics, error)
}
