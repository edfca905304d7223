package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/port"
)

// SystemRepository implements IdempotencyStore via Postgres.
// It backs feedback dedupe when Redis is not configured.
type SystemRepository struct {
	DB *pgxpool.Pool
}

func NewSystemRepository(pool *pgxpool.Pool) *SystemRepository {
	return &SystemRepository{DB: pool}
}

func (r *SystemRepository) Check(ctx context.Context, key string) (bool, error) {
	exec := getExecutor(ctx, r.DB)
	var expiresAt *time.Time
	err := exec.QueryRow(ctx, "SELECT expires_at FROM idempotency_keys WHERE key = $1", key).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if expiresAt != nil && time.Now().After(*expiresAt) {
		return false, nil
	}
	return true, nil
}

func (r *SystemRepository) Save(ctx context.Context, key string, ttl time.Duration) error {
	exec := getExecutor(ctx, r.DB)
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl).UTC()
		expiresAt = &t
	}
	_, err := exec.Exec(ctx,
		"INSERT INTO idempotency_keys (key, expires_at) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at",
		key, expiresAt)
	return err
}

// PruneKeys deletes expired idempotency keys.
func (r *SystemRepository) PruneKeys(ctx context.Context, now time.Time) (int64, error) {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, "DELETE FROM idempotency_keys WHERE expires_at IS NOT NULL AND expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ port.IdempotencyStore = (*SystemRepository)(nil)
