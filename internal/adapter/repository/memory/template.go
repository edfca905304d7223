package memory

import (
	"context"
	"sync"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type TemplateRepository struct {
	mu   sync.RWMutex
	data map[string]domain.NotificationTemplate
}

func NewTemplateRepository(templates ...domain.NotificationTemplate) *TemplateRepository {
	r := &TemplateRepository{data: make(map[string]domain.NotificationTemplate)}
	for _, t := range templates {
		r.data[templateKey(t.ID, t.Channel)] = t
	}
	return r
}

func (r *TemplateRepository) Put(t domain.NotificationTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[templateKey(t.ID, t.Channel)] = t
}

func (r *TemplateRepository) Find(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data[templateKey(id, channel)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func templateKey(id string, channel domain.Channel) string {
	return id + "/" + string(channel)
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
