package port

import (
	"context"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
)

// RequestRepository exposes the lead lifecycle subset of Request records.
type RequestRepository interface {
	// FindStale returns requests in one of statuses whose last activity is before the threshold.
	FindStale(ctx context.Context, statuses []domain.RequestStatus, before time.Time, limit int) ([]domain.Request, error)
	// Expire sets status Expired, stamps expiredAt and appends note(from) to officeNotes,
	// only if the current status is still one of eligible. It returns the status the
	// request held when it was expired.
	Expire(ctx context.Context, id string, eligible []domain.RequestStatus, expiredAt time.Time, note func(from domain.RequestStatus) string) (domain.RequestStatus, bool, error)
}
