package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/metrics"
	"github.com/strogmv/renodesk/internal/pkg/report"
	"github.com/strogmv/renodesk/internal/pkg/tracing"
	"github.com/strogmv/renodesk/internal/port"
)

// ReputationConfig tunes the daily aggregation.
type ReputationConfig struct {
	Thresholds domain.Thresholds
	// ReportLinkTTL is the lifetime of the presigned report link attached to alerts.
	ReportLinkTTL time.Duration
}

// ReputationAggregator computes the daily sender-reputation snapshot and raises alerts.
type ReputationAggregator struct {
	Stats   port.StatisticsProvider
	Metrics port.MetricsRepository
	Alerter port.Alerter
	// Storage and Reports are optional; without them no snapshot is archived.
	Storage port.FileStorage
	Reports *report.Generator

	cfg ReputationConfig
	now func() time.Time
}

func NewReputationAggregator(stats port.StatisticsProvider, metricsRepo port.MetricsRepository, alerter port.Alerter, cfg ReputationConfig) *ReputationAggregator {
	if cfg.Thresholds == (domain.Thresholds{}) {
		cfg.Thresholds = domain.DefaultThresholds
	}
	if cfg.ReportLinkTTL <= 0 {
		cfg.ReportLinkTTL = 7 * 24 * time.Hour
	}
	return &ReputationAggregator{
		Stats:   stats,
		Metrics: metricsRepo,
		Alerter: alerter,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithArchive enables the S3 snapshot archive.
func (a *ReputationAggregator) WithArchive(storage port.FileStorage, reports *report.Generator) *ReputationAggregator {
	a.Storage = storage
	a.Reports = reports
	return a
}

// Run fetches provider statistics, persists today's record and alerts on degradation.
// A statistics failure aborts the run before anything is written.
func (a *ReputationAggregator) Run(ctx context.Context) (domain.ReputationMetrics, error) {
	ctx, span := tracing.Tracer().Start(ctx, "reputation.run")
	defer span.End()
	start := a.now()
	defer func() { metrics.JobDuration.WithLabelValues("reputation").Observe(time.Since(start).Seconds()) }()
	log := logger.From(ctx).With(slog.String("job", "reputation"))

	quota, err := a.Stats.GetQuota(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota")
		log.Error("fetch send quota failed, skipping aggregation", slog.Any("error", err))
		return domain.ReputationMetrics{}, fmt.Errorf("get send quota: %w", err)
	}
	points, err := a.Stats.GetStatistics(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics")
		log.Error("fetch send statistics failed, skipping aggregation", slog.Any("error", err))
		return domain.ReputationMetrics{}, fmt.Errorf("get send statistics: %w", err)
	}

	m := Aggregate(points, quota, a.cfg.Thresholds)
	m.Date = domain.DayKey(start)
	m.UpdatedAt = start.UTC()

	if err := a.Metrics.Save(ctx, m); err != nil {
		span.RecordError(err)
		return m, fmt.Errorf("save reputation metrics %s: %w", m.Date, err)
	}

	metrics.ReputationScore.Set(float64(m.ReputationScore))
	metrics.ReputationRate.WithLabelValues("bounce").Set(m.BounceRate)
	metrics.ReputationRate.WithLabelValues("complaint").Set(m.ComplaintRate)
	metrics.ReputationRate.WithLabelValues("delivery").Set(m.DeliveryRate)
	span.SetAttributes(attribute.Int("reputation.score", m.ReputationScore), attribute.Bool("reputation.alerting", m.Alerting()))

	conditions := m.AlertConditions(a.cfg.Thresholds)
	reportURL := a.archive(ctx, m, conditions)

	log.Info("reputation snapshot saved",
		slog.String("date", m.Date),
		slog.Int64("sent", m.TotalEmailsSent),
		slog.Float64("bounce_rate", m.BounceRate),
		slog.Float64("complaint_rate", m.ComplaintRate),
		slog.Int("score", m.ReputationScore),
	)

	if m.Alerting() && a.Alerter != nil {
		alert := port.Alert{
			Subject:    fmt.Sprintf("Sender reputation alert for %s (score %d)", m.Date, m.ReputationScore),
			Conditions: conditions,
			Metrics:    m,
			ReportURL:  reportURL,
		}
		if err := a.Alerter.Alert(ctx, alert); err != nil {
			log.Error("reputation alert delivery failed", slog.Any("error", err))
		}
	}
	return m, nil
}

// Aggregate sums provider data points into a scored snapshot with alert flags applied.
func Aggregate(points []port.SendDataPoint, quota port.SendQuota, t domain.Thresholds) domain.ReputationMetrics {
	var m domain.ReputationMetrics
	for _, p := range points {
		m.TotalEmailsSent += p.DeliveryAttempts
		m.TotalBounces += p.Bounces
		m.TotalComplaints += p.Complaints
		m.TotalRejects += p.Rejects
	}
	rates := domain.ComputeRates(m.TotalEmailsSent, m.TotalBounces, m.TotalComplaints)
	m.BounceRate = rates.Bounce
	m.ComplaintRate = rates.Complaint
	m.DeliveryRate = rates.Delivery
	m.ReputationScore = domain.ComputeScore(rates)

	m.SendingQuotaUsed = quota.SentLast24Hours
	m.SendingQuotaMax = quota.Max24HourSend
	m.MaxSendRate = quota.MaxSendRate
	m.QuotaUsagePercent = domain.QuotaUsage(quota.SentLast24Hours, quota.Max24HourSend)

	m.ApplyAlerts(t)
	return m
}

// archive uploads the JSON and PDF snapshot and returns a presigned link to the PDF.
// Failures are logged and yield an empty link.
func (a *ReputationAggregator) archive(ctx context.Context, m domain.ReputationMetrics, conditions []string) string {
	if a.Storage == nil {
		return ""
	}
	log := logger.From(ctx).With(slog.String("date", m.Date))
	prefix := "reputation/" + m.Date

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		log.Warn("marshal reputation snapshot failed", slog.Any("error", err))
		return ""
	}
	if _, err := a.Storage.Upload(ctx, prefix+".json", bytes.NewReader(body), "application/json"); err != nil {
		log.Warn("archive reputation snapshot failed", slog.Any("error", err))
		return ""
	}

	if a.Reports == nil {
		return ""
	}
	pdf, err := a.Reports.GenerateReputationReport(m, conditions)
	if err != nil {
		log.Warn("render reputation report failed", slog.Any("error", err))
		return ""
	}
	key := prefix + ".pdf"
	if _, err := a.Storage.Upload(ctx, key, bytes.NewReader(pdf), "application/pdf"); err != nil {
		log.Warn("archive reputation report failed", slog.Any("error", err))
		return ""
	}
	url, err := a.Storage.PresignGet(ctx, key, a.cfg.ReportLinkTTL)
	if err != nil {
		log.Warn("presign reputation report failed", slog.Any("error", err))
		return ""
	}
	return url
}
