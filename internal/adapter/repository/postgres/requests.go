package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

// RequestRepository reads and expires rows of the CRM requests table.
type RequestRepository struct {
	DB *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{DB: pool}
}

func statusStrings(statuses []domain.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *RequestRepository) FindStale(ctx context.Context, statuses []domain.RequestStatus, before time.Time, limit int) ([]domain.Request, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx, `
		SELECT id, status, office_notes, COALESCE(contact_id, ''), created_at, updated_at, expired_date
		FROM requests
		WHERE status = ANY($1) AND COALESCE(updated_at, created_at) < $2
		ORDER BY COALESCE(updated_at, created_at)
		LIMIT $3
	`, statusStrings(statuses), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		var (
			req    domain.Request
			status string
		)
		if err := rows.Scan(&req.ID, &status, &req.OfficeNotes, &req.ContactID, &req.CreatedAt, &req.UpdatedAt, &req.ExpiredDate); err != nil {
			return nil, err
		}
		req.Status = domain.RequestStatus(status)
		out = append(out, req)
	}
	return out, rows.Err()
}

// Expire locks the row while it is still eligible, then writes the note built from
// the locked status. No eligible row means the status moved on.
func (r *RequestRepository) Expire(ctx context.Context, id string, eligible []domain.RequestStatus, expiredAt time.Time, note func(from domain.RequestStatus) string) (domain.RequestStatus, bool, error) {
	var from domain.RequestStatus
	var expired bool
	err := NewTxManager(r.DB).WithTx(ctx, func(ctx context.Context) error {
		exec := getExecutor(ctx, r.DB)
		var status string
		err := exec.QueryRow(ctx, `
			SELECT status FROM requests
			WHERE id = $1 AND status = ANY($2)
			FOR UPDATE
		`, id, statusStrings(eligible)).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		from = domain.RequestStatus(status)
		tag, err := exec.Exec(ctx, `
			UPDATE requests
			SET status = $3,
			    expired_date = $4,
			    updated_at = $4,
			    office_notes = CASE WHEN COALESCE(office_notes, '') = '' THEN $5 ELSE office_notes || E'\n' || $5 END
			WHERE id = $1 AND status = $2
		`, id, status, string(domain.RequestExpired), expiredAt, note(from))
		if err != nil {
			return err
		}
		expired = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return from, expired, nil
}

var _ port.RequestRepository = (*RequestRepository)(nil)
