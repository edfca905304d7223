package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type RequestRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Request

	// BeforeExpire runs inside Expire before the status guard is evaluated.
	// Tests use it to simulate a concurrent writer.
	BeforeExpire func(r *domain.Request)
}

func NewRequestRepository(requests ...domain.Request) *RequestRepository {
	r := &RequestRepository{data: make(map[string]*domain.Request)}
	for i := range requests {
		req := requests[i]
		r.data[req.ID] = &req
	}
	return r
}

func (r *RequestRepository) FindStale(ctx context.Context, statuses []domain.RequestStatus, before time.Time, limit int) ([]domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Request
	for _, req := range r.data {
		if !statusIn(req.Status, statuses) {
			continue
		}
		if req.LastActivity().Before(before) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity().Before(out[j].LastActivity()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RequestRepository) Expire(ctx context.Context, id string, eligible []domain.RequestStatus, expiredAt time.Time, note func(from domain.RequestStatus) string) (domain.RequestStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.data[id]
	if !ok {
		return "", false, domain.ErrNotFound
	}
	if r.BeforeExpire != nil {
		r.BeforeExpire(req)
	}
	if !statusIn(req.Status, eligible) {
		return req.Status, false, nil
	}
	from := req.Status
	req.Status = domain.RequestExpired
	if req.OfficeNotes != "" {
		req.OfficeNotes += "\n"
	}
	req.OfficeNotes += note(from)
	at := expiredAt
	req.ExpiredDate = &at
	req.UpdatedAt = &at
	return from, true, nil
}

// Get returns a copy of a request.
func (r *RequestRepository) Get(id string) (domain.Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.data[id]
	if !ok {
		return domain.Request{}, false
	}
	return *req, true
}

func statusIn(s domain.RequestStatus, set []domain.RequestStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

var _ port.RequestRepository = (*RequestRepository)(nil)
