package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type EventLog struct {
	mu     sync.RWMutex
	events []domain.NotificationEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(ctx context.Context, event domain.NotificationEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *EventLog) ListByNotification(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error) {
	return l.filter(0, func(e domain.NotificationEvent) bool { return e.NotificationID == notificationID }), nil
}

func (l *EventLog) ListByRecipient(ctx context.Context, recipient string, limit int) ([]domain.NotificationEvent, error) {
	recipient = domain.NormalizeAddress(recipient)
	return l.filter(limit, func(e domain.NotificationEvent) bool { return e.Recipient == recipient }), nil
}

func (l *EventLog) ListRange(ctx context.Context, from, to time.Time, limit int) ([]domain.NotificationEvent, error) {
	return l.filter(limit, func(e domain.NotificationEvent) bool {
		return !e.Timestamp.Before(from) && e.Timestamp.Before(to)
	}), nil
}

func (l *EventLog) CountSince(ctx context.Context, since time.Time) (domain.EventCounts, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var c domain.EventCounts
	for _, e := range l.events {
		if e.Timestamp.Before(since) || e.Channel != domain.ChannelEmail {
			continue
		}
		switch e.EventType {
		case domain.EventSent:
			c.Sent++
		case domain.EventBounce:
			c.Bounces++
		case domain.EventComplaint:
			c.Complaints++
		case domain.EventFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (l *EventLog) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	var n int64
	for _, e := range l.events {
		if !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return n, nil
}

// All returns every event in append order.
func (l *EventLog) All() []domain.NotificationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.NotificationEvent(nil), l.events...)
}

func (l *EventLog) filter(limit int, keep func(domain.NotificationEvent) bool) []domain.NotificationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.NotificationEvent
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ port.EventLog = (*EventLog)(nil)
