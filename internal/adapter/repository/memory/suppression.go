package memory

import (
	"context"
	"sync"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type suppressionKey struct {
	address string
	typ     domain.SuppressionType
}

type SuppressionRepository struct {
	mu   sync.RWMutex
	data map[suppressionKey]domain.SuppressionEntry
}

func NewSuppressionRepository() *SuppressionRepository {
	return &SuppressionRepository{data: make(map[suppressionKey]domain.SuppressionEntry)}
}

func (r *SuppressionRepository) FindByAddress(ctx context.Context, address string) ([]domain.SuppressionEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	address = domain.NormalizeAddress(address)
	var out []domain.SuppressionEntry
	for k, v := range r.data {
		if k.address == address {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *SuppressionRepository) Upsert(ctx context.Context, entry domain.SuppressionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.EmailAddress = domain.NormalizeAddress(entry.EmailAddress)
	r.data[suppressionKey{entry.EmailAddress, entry.SuppressionType}] = entry
	return nil
}

func (r *SuppressionRepository) Deactivate(ctx context.Context, address string, typ domain.SuppressionType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := suppressionKey{domain.NormalizeAddress(address), typ}
	e, ok := r.data[k]
	if !ok || !e.IsActive {
		return false, nil
	}
	e.IsActive = false
	r.data[k] = e
	return true, nil
}

// All returns every stored entry.
func (r *SuppressionRepository) All() []domain.SuppressionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SuppressionEntry, 0, len(r.data))
	for _, v := range r.data {
		out = append(out, v)
	}
	return out
}

var _ port.SuppressionRepository = (*SuppressionRepository)(nil)
