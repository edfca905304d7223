package port

import (
	"context"

	"github.com/strogmv/renodesk/internal/domain"
)

// SuppressionRepository stores the never-send list.
type SuppressionRepository interface {
	// FindByAddress returns every entry for the normalized address, active or not.
	FindByAddress(ctx context.Context, address string) ([]domain.SuppressionEntry, error)
	// Upsert creates or reactivates the (address, type) entry.
	Upsert(ctx context.Context, entry domain.SuppressionEntry) error
	// Deactivate flips isActive off for the (address, type) entry.
	Deactivate(ctx context.Context, address string, typ domain.SuppressionType) (bool, error)
}
