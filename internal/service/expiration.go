package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/metrics"
	"github.com/strogmv/renodesk/internal/pkg/tracing"
	"github.com/strogmv/renodesk/internal/port"
)

// ExpiredEventType tags the notification enqueued for an expired request.
const ExpiredEventType = "request.expired"

// ExpirationConfig tunes the lead expiration run.
type ExpirationConfig struct {
	Inactivity time.Duration
	BatchSize  int
	// TemplateID and NotifyRecipients enable a request.expired notification per expiration.
	TemplateID       string
	NotifyRecipients []string
}

// ExpirationMatch is a request selected for expiration.
type ExpirationMatch struct {
	ID              string               `json:"id"`
	Status          domain.RequestStatus `json:"status"`
	DaysSinceUpdate int                  `json:"daysSinceUpdate"`
}

// ExpirationReport counts what a run did.
type ExpirationReport struct {
	Total     int               `json:"total"`
	Processed int               `json:"processed"`
	Skipped   int               `json:"skipped"`
	Errors    int               `json:"errors"`
	DryRun    bool              `json:"dryRun"`
	Matches   []ExpirationMatch `json:"matches"`
}

// ExpirationProcessor moves inactive lead-stage requests to Expired.
type ExpirationProcessor struct {
	Requests port.RequestRepository
	// Queue is optional; it receives the request.expired notifications.
	Queue port.QueueRepository

	cfg ExpirationConfig
	now func() time.Time
}

func NewExpirationProcessor(requests port.RequestRepository, queue port.QueueRepository, cfg ExpirationConfig) *ExpirationProcessor {
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 14 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &ExpirationProcessor{
		Requests: requests,
		Queue:    queue,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run expires every eligible request inactive for longer than the configured window.
// In dry-run mode it only resolves the matches.
func (p *ExpirationProcessor) Run(ctx context.Context, dryRun bool) (ExpirationReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "expiration.run")
	defer span.End()
	now := p.now().UTC()
	defer func() { metrics.JobDuration.WithLabelValues("expiration").Observe(time.Since(now).Seconds()) }()
	log := logger.From(ctx).With(slog.String("job", "expiration"), slog.Bool("dry_run", dryRun))

	report := ExpirationReport{DryRun: dryRun}
	threshold := now.Add(-p.cfg.Inactivity)

	stale, err := p.Requests.FindStale(ctx, domain.ExpirableStatuses, threshold, p.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("find stale requests: %w", err)
	}
	report.Total = len(stale)
	for _, req := range stale {
		report.Matches = append(report.Matches, ExpirationMatch{
			ID:              req.ID,
			Status:          req.Status,
			DaysSinceUpdate: domain.DaysSince(req.LastActivity(), now),
		})
	}
	span.SetAttributes(attribute.Int("expiration.total", report.Total))

	if dryRun {
		log.Info("expiration dry run", slog.Int("matches", report.Total), slog.Time("threshold", threshold))
		return report, nil
	}

	for i := range report.Matches {
		match := &report.Matches[i]
		days := match.DaysSinceUpdate
		from, ok, err := p.Requests.Expire(ctx, match.ID, domain.ExpirableStatuses, now, func(prev domain.RequestStatus) string {
			return ExpirationNote(now, prev, days)
		})
		if err != nil {
			report.Errors++
			metrics.RequestsExpired.WithLabelValues("error").Inc()
			log.Error("expire request failed", slog.String("request_id", match.ID), slog.Any("error", err))
			continue
		}
		if !ok {
			report.Skipped++
			metrics.RequestsExpired.WithLabelValues("skipped").Inc()
			log.Info("request status changed concurrently, skipping", slog.String("request_id", match.ID))
			continue
		}
		if from != match.Status {
			log.Info("request status changed before expiry",
				slog.String("request_id", match.ID),
				slog.String("scanned_status", string(match.Status)),
				slog.String("status", string(from)),
			)
			match.Status = from
		}
		report.Processed++
		metrics.RequestsExpired.WithLabelValues("expired").Inc()
		p.notify(ctx, *match, now)
	}

	log.Info("expiration run finished",
		slog.Int("total", report.Total),
		slog.Int("processed", report.Processed),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
	)
	return report, nil
}

// ExpirationNote is the audit line appended to a request's office notes.
func ExpirationNote(at time.Time, from domain.RequestStatus, days int) string {
	return fmt.Sprintf("[%s] Status automatically changed from %s to %s after %d days of inactivity.",
		at.UTC().Format(time.RFC3339), from, domain.RequestExpired, days)
}

func (p *ExpirationProcessor) notify(ctx context.Context, match ExpirationMatch, at time.Time) {
	if p.Queue == nil || p.cfg.TemplateID == "" || len(p.cfg.NotifyRecipients) == 0 {
		return
	}
	entry := &domain.NotificationQueueEntry{
		EventType:    ExpiredEventType,
		Channels:     []domain.Channel{domain.ChannelEmail},
		TemplateID:   p.cfg.TemplateID,
		RecipientIDs: append([]string(nil), p.cfg.NotifyRecipients...),
		Payload: map[string]any{
			"requestId":      match.ID,
			"previousStatus": string(match.Status),
			"daysInactive":   match.DaysSinceUpdate,
			"expiredAt":      at.Format(time.RFC3339),
		},
	}
	if err := p.Queue.Enqueue(ctx, entry); err != nil {
		logger.From(ctx).Warn("enqueue expiration notification failed", slog.String("request_id", match.ID), slog.Any("error", err))
	}
}
