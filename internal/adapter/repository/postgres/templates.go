package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type TemplateRepository struct {
	DB *pgxpool.Pool
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{DB: pool}
}

func (r *TemplateRepository) Find(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	exec := getExecutor(ctx, r.DB)
	var (
		t  domain.NotificationTemplate
		ch string
	)
	err := exec.QueryRow(ctx,
		"SELECT id, channel, COALESCE(subject, ''), body FROM notification_templates WHERE id = $1 AND channel = $2",
		id, string(channel)).Scan(&t.ID, &ch, &t.Subject, &t.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	t.Channel = domain.Channel(ch)
	return &t, nil
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
