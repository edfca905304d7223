package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type MetricsRepository struct {
	mu   sync.Mutex
	data map[string]domain.ReputationMetrics
}

func NewMetricsRepository() *MetricsRepository {
	return &MetricsRepository{data: make(map[string]domain.ReputationMetrics)}
}

func (r *MetricsRepository) Increment(ctx context.Context, date string, counter domain.Counter, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.data[date]
	if !ok {
		m = domain.ReputationMetrics{Date: date}
	}
	switch counter {
	case domain.CounterSent:
		m.TotalEmailsSent += delta
	case domain.CounterBounces:
		m.TotalBounces += delta
	case domain.CounterComplaints:
		m.TotalComplaints += delta
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}
	r.data[date] = m
	return nil
}

func (r *MetricsRepository) Save(ctx context.Context, m domain.ReputationMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[m.Date] = m
	return nil
}

func (r *MetricsRepository) FindByDate(ctx context.Context, date string) (*domain.ReputationMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.data[date]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

var _ port.MetricsRepository = (*MetricsRepository)(nil)
