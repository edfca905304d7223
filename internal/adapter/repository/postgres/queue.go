package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

// QueueRepository stores notification_queue rows. Status changes are conditional UPDATEs.
type QueueRepository struct {
	DB *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{DB: pool}
}

const queueColumns = "id, event_type, channels, payload, template_id, recipient_ids, status, retry_count, created_at, updated_at"

func (r *QueueRepository) Enqueue(ctx context.Context, entry *domain.NotificationQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.QueuePending
	}
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	channels := make([]string, len(entry.Channels))
	for i, c := range entry.Channels {
		channels[i] = string(c)
	}
	exec := getExecutor(ctx, r.DB)
	err := exec.QueryRow(ctx, `
		INSERT INTO notification_queue (id, event_type, channels, payload, template_id, recipient_ids, status, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, entry.ID, entry.EventType, channels, entry.Payload, entry.TemplateID, entry.RecipientIDs, string(entry.Status), entry.RetryCount,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.NotificationQueueEntry, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx,
		"SELECT "+queueColumns+" FROM notification_queue WHERE status = $1 ORDER BY created_at LIMIT $2",
		string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.NotificationQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *QueueRepository) Claim(ctx context.Context, id string) (bool, error) {
	return r.Transition(ctx, id, domain.QueuePending, domain.QueueProcessing, 0)
}

func (r *QueueRepository) Transition(ctx context.Context, id string, from, to domain.QueueStatus, retryDelta int) (bool, error) {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, `
		UPDATE notification_queue
		SET status = $3, retry_count = retry_count + $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), retryDelta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QueueRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, `
		UPDATE notification_queue SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`, string(domain.QueuePending), string(domain.QueueProcessing), before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindByID returns one entry.
func (r *QueueRepository) FindByID(ctx context.Context, id string) (*domain.NotificationQueueEntry, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx, "SELECT "+queueColumns+" FROM notification_queue WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}
	e, err := scanQueueEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanQueueEntry(rows pgx.Rows) (domain.NotificationQueueEntry, error) {
	var (
		e        domain.NotificationQueueEntry
		channels []string
		status   string
	)
	if err := rows.Scan(&e.ID, &e.EventType, &channels, &e.Payload, &e.TemplateID, &e.RecipientIDs, &status, &e.RetryCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	e.Status = domain.QueueStatus(status)
	for _, c := range channels {
		e.Channels = append(e.Channels, domain.Channel(c))
	}
	return e, nil
}

var _ port.QueueRepository = (*QueueRepository)(nil)
