package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

// MetricsRepository stores one reputation_metrics row per day.
type MetricsRepository struct {
	DB *pgxpool.Pool
}

func NewMetricsRepository(pool *pgxpool.Pool) *MetricsRepository {
	return &MetricsRepository{DB: pool}
}

func counterColumn(c domain.Counter) (string, error) {
	switch c {
	case domain.CounterSent, domain.CounterBounces, domain.CounterComplaints:
		return string(c), nil
	}
	return "", fmt.Errorf("unknown counter %q", c)
}

// Increment adds delta to a counter in a single statement, creating the day's row if absent.
func (r *MetricsRepository) Increment(ctx context.Context, date string, counter domain.Counter, delta int64) error {
	col, err := counterColumn(counter)
	if err != nil {
		return err
	}
	exec := getExecutor(ctx, r.DB)
	_, err = exec.Exec(ctx, `
		INSERT INTO reputation_metrics (date, `+col+`, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (date) DO UPDATE
		SET `+col+` = reputation_metrics.`+col+` + EXCLUDED.`+col+`, updated_at = NOW()
	`, date, delta)
	return err
}

const metricsColumns = `date, total_emails_sent, total_bounces, total_complaints, total_rejects,
	bounce_rate, complaint_rate, delivery_rate, reputation_score,
	sending_quota_used, sending_quota_max, max_send_rate, quota_usage_percent,
	bounce_rate_alert, complaint_rate_alert, quota_alert, low_score_alert, updated_at`

// Save overwrites the day's row with a computed snapshot.
func (r *MetricsRepository) Save(ctx context.Context, m domain.ReputationMetrics) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx, `
		INSERT INTO reputation_metrics (`+metricsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (date) DO UPDATE SET
			total_emails_sent = EXCLUDED.total_emails_sent,
			total_bounces = EXCLUDED.total_bounces,
			total_complaints = EXCLUDED.total_complaints,
			total_rejects = EXCLUDED.total_rejects,
			bounce_rate = EXCLUDED.bounce_rate,
			complaint_rate = EXCLUDED.complaint_rate,
			delivery_rate = EXCLUDED.delivery_rate,
			reputation_score = EXCLUDED.reputation_score,
			sending_quota_used = EXCLUDED.sending_quota_used,
			sending_quota_max = EXCLUDED.sending_quota_max,
			max_send_rate = EXCLUDED.max_send_rate,
			quota_usage_percent = EXCLUDED.quota_usage_percent,
			bounce_rate_alert = EXCLUDED.bounce_rate_alert,
			complaint_rate_alert = EXCLUDED.complaint_rate_alert,
			quota_alert = EXCLUDED.quota_alert,
			low_score_alert = EXCLUDED.low_score_alert,
			updated_at = EXCLUDED.updated_at
	`, m.Date, m.TotalEmailsSent, m.TotalBounces, m.TotalComplaints, m.TotalRejects,
		m.BounceRate, m.ComplaintRate, m.DeliveryRate, m.ReputationScore,
		m.SendingQuotaUsed, m.SendingQuotaMax, m.MaxSendRate, m.QuotaUsagePercent,
		m.BounceRateAlert, m.ComplaintRateAlert, m.QuotaAlert, m.LowScoreAlert, m.UpdatedAt)
	return err
}

func (r *MetricsRepository) FindByDate(ctx context.Context, date string) (*domain.ReputationMetrics, error) {
	exec := getExecutor(ctx, r.DB)
	var m domain.ReputationMetrics
	err := exec.QueryRow(ctx, "SELECT "+metricsColumns+" FROM reputation_metrics WHERE date = $1", date).Scan(
		&m.Date, &m.TotalEmailsSent, &m.TotalBounces, &m.TotalComplaints, &m.TotalRejects,
		&m.BounceRate, &m.ComplaintRate, &m.DeliveryRate, &m.ReputationScore,
		&m.SendingQuotaUsed, &m.SendingQuotaMax, &m.MaxSendRate, &m.QuotaUsagePercent,
		&m.BounceRateAlert, &m.ComplaintRateAlert, &m.QuotaAlert, &m.LowScoreAlert, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

var _ port.MetricsRepository = (*MetricsRepository)(nil)
