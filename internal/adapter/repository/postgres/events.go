package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

// EventLog is the append-only notification_events table.
type EventLog struct {
	DB *pgxpool.Pool
}

func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{DB: pool}
}

const eventColumns = `event_id, notification_id, event_type, channel, recipient, provider, provider_status,
	error_code, error_message, metadata, ts, expires_at`

func (l *EventLog) Append(ctx context.Context, ev domain.NotificationEvent) error {
	exec := getExecutor(ctx, l.DB)
	var expiresAt *time.Time
	if !ev.ExpiresAt.IsZero() {
		expiresAt = &ev.ExpiresAt
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	_, err := exec.Exec(ctx, `
		INSERT INTO notification_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ev.EventID, ev.NotificationID, string(ev.EventType), string(ev.Channel), ev.Recipient, ev.Provider, ev.ProviderStatus,
		ev.ErrorCode, ev.ErrorMessage, ev.Metadata, ev.Timestamp, expiresAt)
	return err
}

func (l *EventLog) ListByNotification(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error) {
	return l.query(ctx, "SELECT "+eventColumns+" FROM notification_events WHERE notification_id = $1 ORDER BY ts DESC", notificationID)
}

func (l *EventLog) ListByRecipient(ctx context.Context, recipient string, limit int) ([]domain.NotificationEvent, error) {
	return l.query(ctx, "SELECT "+eventColumns+" FROM notification_events WHERE recipient = $1 ORDER BY ts DESC LIMIT $2",
		domain.NormalizeAddress(recipient), limit)
}

func (l *EventLog) ListRange(ctx context.Context, from, to time.Time, limit int) ([]domain.NotificationEvent, error) {
	return l.query(ctx, "SELECT "+eventColumns+" FROM notification_events WHERE ts >= $1 AND ts < $2 ORDER BY ts DESC LIMIT $3",
		from, to, limit)
}

func (l *EventLog) CountSince(ctx context.Context, since time.Time) (domain.EventCounts, error) {
	exec := getExecutor(ctx, l.DB)
	var c domain.EventCounts
	err := exec.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE event_type = $2),
		       COUNT(*) FILTER (WHERE event_type = $3),
		       COUNT(*) FILTER (WHERE event_type = $4),
		       COUNT(*) FILTER (WHERE event_type = $5)
		FROM notification_events
		WHERE channel = $6 AND ts >= $1
	`, since, string(domain.EventSent), string(domain.EventBounce), string(domain.EventComplaint), string(domain.EventFailed),
		string(domain.ChannelEmail)).Scan(&c.Sent, &c.Bounces, &c.Complaints, &c.Failed)
	return c, err
}

func (l *EventLog) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	exec := getExecutor(ctx, l.DB)
	tag, err := exec.Exec(ctx, "DELETE FROM notification_events WHERE expires_at IS NOT NULL AND expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (l *EventLog) query(ctx context.Context, sql string, args ...any) ([]domain.NotificationEvent, error) {
	exec := getExecutor(ctx, l.DB)
	rows, err := exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.NotificationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(rows pgx.Rows) (domain.NotificationEvent, error) {
	var (
		ev        domain.NotificationEvent
		eventType string
		channel   string
		expiresAt *time.Time
	)
	err := rows.Scan(&ev.EventID, &ev.NotificationID, &eventType, &channel, &ev.Recipient, &ev.Provider, &ev.ProviderStatus,
		&ev.ErrorCode, &ev.ErrorMessage, &ev.Metadata, &ev.Timestamp, &expiresAt)
	if err != nil {
		return ev, err
	}
	ev.EventType = domain.EventType(eventType)
	ev.Channel = domain.Channel(channel)
	if expiresAt != nil {
		ev.ExpiresAt = *expiresAt
	}
	return ev, nil
}

var _ port.EventLog = (*EventLog)(nil)
