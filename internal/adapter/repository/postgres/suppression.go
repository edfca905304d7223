package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

// SuppressionRepository stores suppression_list rows keyed by (email_address, suppression_type).
type SuppressionRepository struct {
	DB *pgxpool.Pool
}

func NewSuppressionRepository(pool *pgxpool.Pool) *SuppressionRepository {
	return &SuppressionRepository{DB: pool}
}

func (r *SuppressionRepository) FindByAddress(ctx context.Context, address string) ([]domain.SuppressionEntry, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx, `
		SELECT email_address, suppression_type, reason, COALESCE(bounce_type, ''), COALESCE(bounce_sub_type, ''),
		       is_active, suppressed_at, metadata
		FROM suppression_list WHERE email_address = $1
	`, domain.NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SuppressionEntry
	for rows.Next() {
		var (
			e   domain.SuppressionEntry
			typ string
		)
		if err := rows.Scan(&e.EmailAddress, &typ, &e.Reason, &e.BounceType, &e.BounceSubType, &e.IsActive, &e.SuppressedAt, &e.Metadata); err != nil {
			return nil, err
		}
		e.SuppressionType = domain.SuppressionType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SuppressionRepository) Upsert(ctx context.Context, entry domain.SuppressionEntry) error {
	exec := getExecutor(ctx, r.DB)
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	_, err := exec.Exec(ctx, `
		INSERT INTO suppression_list (email_address, suppression_type, reason, bounce_type, bounce_sub_type, is_active, suppressed_at, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (email_address, suppression_type) DO UPDATE
		SET reason = EXCLUDED.reason,
		    bounce_type = EXCLUDED.bounce_type,
		    bounce_sub_type = EXCLUDED.bounce_sub_type,
		    is_active = EXCLUDED.is_active,
		    suppressed_at = EXCLUDED.suppressed_at,
		    metadata = EXCLUDED.metadata
	`, domain.NormalizeAddress(entry.EmailAddress), string(entry.SuppressionType), entry.Reason,
		entry.BounceType, entry.BounceSubType, entry.IsActive, entry.SuppressedAt, entry.Metadata)
	return err
}

func (r *SuppressionRepository) Deactivate(ctx context.Context, address string, typ domain.SuppressionType) (bool, error) {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, `
		UPDATE suppression_list SET is_active = false
		WHERE email_address = $1 AND suppression_type = $2 AND is_active
	`, domain.NormalizeAddress(address), string(typ))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

var _ port.SuppressionRepository = (*SuppressionRepository)(nil)
