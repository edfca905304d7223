// Package memory provides in-memory implementations of the repository ports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type QueueRepository struct {
	mu      sync.RWMutex
	data    map[string]*domain.NotificationQueueEntry
	history map[string][]domain.QueueStatus
	now     func() time.Time
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{
		data:    make(map[string]*domain.NotificationQueueEntry),
		history: make(map[string][]domain.QueueStatus),
		now:     time.Now,
	}
}

func (r *QueueRepository) Enqueue(ctx context.Context, entry *domain.NotificationQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.QueuePending
	}
	now := r.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = entry.CreatedAt
	cp := cloneEntry(*entry)
	r.data[entry.ID] = &cp
	r.history[entry.ID] = []domain.QueueStatus{cp.Status}
	return nil
}

func (r *QueueRepository) ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.NotificationQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []domain.NotificationQueueEntry
	for _, e := range r.data {
		if e.Status == status {
			items = append(items, cloneEntry(*e))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *QueueRepository) Claim(ctx context.Context, id string) (bool, error) {
	return r.Transition(ctx, id, domain.QueuePending, domain.QueueProcessing, 0)
}

func (r *QueueRepository) Transition(ctx context.Context, id string, from, to domain.QueueStatus, retryDelta int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	e.RetryCount += retryDelta
	e.UpdatedAt = r.now()
	r.history[id] = append(r.history[id], to)
	return true, nil
}

func (r *QueueRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.data {
		if e.Status == domain.QueueProcessing && e.UpdatedAt.Before(before) {
			e.Status = domain.QueuePending
			e.UpdatedAt = r.now()
			r.history[id] = append(r.history[id], domain.QueuePending)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of an entry.
func (r *QueueRepository) Get(id string) (domain.NotificationQueueEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.data[id]
	if !ok {
		return domain.NotificationQueueEntry{}, false
	}
	return cloneEntry(*e), true
}

// History returns every status an entry has held, in order.
func (r *QueueRepository) History(id string) []domain.QueueStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.QueueStatus(nil), r.history[id]...)
}

// SetClock overrides the clock used for timestamps.
func (r *QueueRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func cloneEntry(e domain.NotificationQueueEntry) domain.NotificationQueueEntry {
	e.Channels = append([]domain.Channel(nil), e.Channels...)
	e.RecipientIDs = append([]string(nil), e.RecipientIDs...)
	if e.Payload != nil {
		p := make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			p[k] = v
		}
		e.Payload = p
	}
	return e
}

var _ port.QueueRepository = (*QueueRepository)(nil)
