package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/metrics"
	"github.com/strogmv/renodesk/internal/pkg/templaterender"
	"github.com/strogmv/renodesk/internal/pkg/tracing"
	"github.com/strogmv/renodesk/internal/port"
)

// DispatcherConfig tunes a dispatch run.
type DispatcherConfig struct {
	BatchSize int
	// MaxRetries is the number of failed passes after which an entry is dead-lettered.
	// Zero retries forever.
	MaxRetries int
	// RunTimeout bounds a run; Processing entries older than this are considered abandoned.
	RunTimeout                 time.Duration
	EventTTL                   time.Duration
	SuppressOnPermanentFailure bool
}

// DispatchReport counts what a run did.
type DispatchReport struct {
	Released     int64
	Requeued     int
	Claimed      int
	LostClaims   int
	Sent         int
	Failed       int
	Suppressed   int
	DeadLettered int
}

// Dispatcher drains the notification queue through channel providers.
type Dispatcher struct {
	Queue        port.QueueRepository
	Templates    port.TemplateRepository
	Suppressions port.SuppressionRepository
	Events       port.EventLog
	Metrics      port.MetricsRepository
	Sender       port.Sender

	cfg DispatcherConfig
	now func() time.Time
}

func NewDispatcher(queue port.QueueRepository, templates port.TemplateRepository, suppressions port.SuppressionRepository, events port.EventLog, metricsRepo port.MetricsRepository, sender port.Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}
	return &Dispatcher{
		Queue:        queue,
		Templates:    templates,
		Suppressions: suppressions,
		Events:       events,
		Metrics:      metricsRepo,
		Sender:       sender,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Run performs one dispatch pass: recover abandoned claims, requeue retryable failures,
// then claim and deliver a batch of Pending entries.
func (d *Dispatcher) Run(ctx context.Context) (DispatchReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "dispatcher.run")
	defer span.End()
	start := d.now()
	defer func() { metrics.JobDuration.WithLabelValues("dispatch").Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()

	log := logger.From(ctx).With(slog.String("job", "dispatch"))
	var report DispatchReport

	released, err := d.Queue.ReleaseStale(ctx, start.Add(-d.cfg.RunTimeout))
	if err != nil {
		log.Warn("release stale claims failed", slog.Any("error", err))
	}
	report.Released = released

	if err := d.requeueFailed(ctx, &report); err != nil {
		log.Warn("requeue failed entries", slog.Any("error", err))
	}

	entries, err := d.Queue.ListByStatus(ctx, domain.QueuePending, d.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list pending")
		return report, fmt.Errorf("list pending entries: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			log.Warn("dispatch run deadline reached", slog.Int("remaining", len(entries)-report.Claimed-report.LostClaims))
			break
		}
		claimed, err := d.Queue.Claim(ctx, entry.ID)
		if err != nil {
			log.Error("claim entry failed", slog.String("entry_id", entry.ID), slog.Any("error", err))
			continue
		}
		if !claimed {
			report.LostClaims++
			continue
		}
		report.Claimed++
		entry.Status = domain.QueueProcessing

		final := d.processEntry(ctx, entry)
		retryDelta := 0
		if final == domain.QueueFailed || final == domain.QueueDeadLettered {
			retryDelta = 1
		}
		// Finalize on a fresh context so a run deadline cannot strand the entry in Processing.
		fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		ok, err := d.Queue.Transition(fctx, entry.ID, domain.QueueProcessing, final, retryDelta)
		fcancel()
		if err != nil || !ok {
			log.Error("finalize entry failed", slog.String("entry_id", entry.ID), slog.String("status", string(final)), slog.Bool("applied", ok), slog.Any("error", err))
			continue
		}
		metrics.QueueEntries.WithLabelValues(string(final)).Inc()
		switch final {
		case domain.QueueSent:
			report.Sent++
		case domain.QueueSuppressed:
			report.Suppressed++
		case domain.QueueDeadLettered:
			report.DeadLettered++
		default:
			report.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("dispatch.claimed", report.Claimed),
		attribute.Int("dispatch.sent", report.Sent),
		attribute.Int("dispatch.failed", report.Failed),
	)
	log.Info("dispatch run finished",
		slog.Int64("released", report.Released),
		slog.Int("requeued", report.Requeued),
		slog.Int("claimed", report.Claimed),
		slog.Int("lost_claims", report.LostClaims),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Int("suppressed", report.Suppressed),
		slog.Int("dead_lettered", report.DeadLettered),
	)
	return report, nil
}

func (d *Dispatcher) requeueFailed(ctx context.Context, report *DispatchReport) error {
	failed, err := d.Queue.ListByStatus(ctx, domain.QueueFailed, d.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, e := range failed {
		next := domain.QueuePending
		if d.cfg.MaxRetries > 0 && e.RetryCount >= d.cfg.MaxRetries {
			next = domain.QueueDeadLettered
		}
		ok, err := d.Queue.Transition(ctx, e.ID, domain.QueueFailed, next, 0)
		if err != nil {
			logger.From(ctx).Warn("requeue entry failed", slog.String("entry_id", e.ID), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		if next == domain.QueueDeadLettered {
			report.DeadLettered++
			metrics.QueueEntries.WithLabelValues(string(next)).Inc()
		} else {
			report.Requeued++
		}
	}
	return nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSuppressed
	outcomeFailed
)

// processEntry delivers every recipient/channel pair of a claimed entry and returns its final status.
func (d *Dispatcher) processEntry(ctx context.Context, entry domain.NotificationQueueEntry) domain.QueueStatus {
	ctx, span := tracing.Tracer().Start(ctx, "dispatcher.entry")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", entry.ID), attribute.String("entry.event_type", entry.EventType))
	log := logger.From(ctx).With(slog.String("entry_id", entry.ID), slog.String("event_type", entry.EventType))

	if len(entry.Channels) == 0 || len(entry.RecipientIDs) == 0 {
		log.Error("entry has no recipients or channels")
		return domain.QueueDeadLettered
	}

	delivered := d.alreadyDelivered(ctx, entry.ID)

	var sent, suppressed, failed int
	for _, channel := range entry.Channels {
		tpl, tplErr := d.Templates.Find(ctx, entry.TemplateID, channel)
		for _, rid := range entry.RecipientIDs {
			address := domain.NormalizeAddress(rid)
			if delivered[deliveryKey(channel, address)] {
				sent++
				continue
			}
			res, blocked := d.screen(ctx, entry, channel, address)
			switch {
			case blocked:
			case tplErr != nil:
				res = d.recordFailure(ctx, entry, channel, address, "", fmt.Errorf("template %s/%s: %w", entry.TemplateID, channel, tplErr))
			default:
				res = d.deliver(ctx, entry, channel, address, tpl)
			}
			switch res {
			case outcomeSent:
				sent++
			case outcomeSuppressed:
				suppressed++
			default:
				failed++
			}
		}
	}

	switch {
	case failed > 0:
		if d.cfg.MaxRetries > 0 && entry.RetryCount+1 >= d.cfg.MaxRetries {
			log.Warn("entry exhausted retries", slog.Int("retry_count", entry.RetryCount+1))
			return domain.QueueDeadLettered
		}
		return domain.QueueFailed
	case sent == 0 && suppressed > 0:
		return domain.QueueSuppressed
	default:
		return domain.QueueSent
	}
}

// screen runs the suppression check that precedes any other work for a recipient.
// blocked is true when the recipient is suppressed or the lookup failed.
func (d *Dispatcher) screen(ctx context.Context, entry domain.NotificationQueueEntry, channel domain.Channel, address string) (res outcome, blocked bool) {
	suppressions, err := d.Suppressions.FindByAddress(ctx, address)
	if err != nil {
		return d.recordFailure(ctx, entry, channel, address, "", fmt.Errorf("suppression lookup: %w", err)), true
	}
	if active := activeSuppression(suppressions); active != nil {
		logger.From(ctx).Info("recipient suppressed",
			slog.String("entry_id", entry.ID),
			slog.String("recipient", address),
			slog.String("channel", string(channel)),
			slog.String("suppression_type", string(active.SuppressionType)),
		)
		metrics.DeliveryAttempts.WithLabelValues(string(channel), "suppressed").Inc()
		d.appendEvent(ctx, domain.NotificationEvent{
			NotificationID: entry.ID,
			EventType:      domain.EventSuppressed,
			Channel:        channel,
			Recipient:      address,
			ProviderStatus: string(active.SuppressionType),
			Metadata: map[string]any{
				"suppressionType": string(active.SuppressionType),
				"reason":          active.Reason,
			},
		})
		return outcomeSuppressed, true
	}
	return outcomeSent, false
}

// deliver renders and sends one message to a recipient that passed screening.
func (d *Dispatcher) deliver(ctx context.Context, entry domain.NotificationQueueEntry, channel domain.Channel, address string, tpl *domain.NotificationTemplate) outcome {
	log := logger.From(ctx).With(slog.String("entry_id", entry.ID), slog.String("recipient", address), slog.String("channel", string(channel)))

	msg := port.OutboundMessage{
		Channel:   channel,
		To:        address,
		Subject:   templaterender.RenderString(tpl.Subject, entry.Payload),
		Body:      templaterender.RenderString(tpl.Body, entry.Payload),
		Reference: entry.ID,
	}
	res, err := d.Sender.Send(ctx, msg)
	if err != nil {
		return d.recordFailure(ctx, entry, channel, address, res.Provider, err)
	}

	metrics.DeliveryAttempts.WithLabelValues(string(channel), "sent").Inc()
	d.appendEvent(ctx, domain.NotificationEvent{
		NotificationID: entry.ID,
		EventType:      domain.EventSent,
		Channel:        channel,
		Recipient:      address,
		Provider:       res.Provider,
		ProviderStatus: res.ProviderStatus,
		Metadata:       map[string]any{"providerMessageId": res.ProviderMessageID, "templateId": entry.TemplateID},
	})
	if channel == domain.ChannelEmail && d.Metrics != nil {
		if err := d.Metrics.Increment(ctx, domain.DayKey(d.now()), domain.CounterSent, 1); err != nil {
			log.Warn("increment sent counter failed", slog.Any("error", err))
		}
	}
	return outcomeSent
}

func (d *Dispatcher) recordFailure(ctx context.Context, entry domain.NotificationQueueEntry, channel domain.Channel, address, provider string, err error) outcome {
	logger.From(ctx).Error("delivery failed",
		slog.String("entry_id", entry.ID),
		slog.String("recipient", address),
		slog.String("channel", string(channel)),
		slog.Any("error", err),
	)
	metrics.DeliveryAttempts.WithLabelValues(string(channel), "failed").Inc()

	ev := domain.NotificationEvent{
		NotificationID: entry.ID,
		EventType:      domain.EventFailed,
		Channel:        channel,
		Recipient:      address,
		Provider:       provider,
		ErrorMessage:   err.Error(),
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		ev.Provider = pe.Provider
		ev.ErrorCode = pe.Code
		ev.ProviderStatus = "transient"
		if pe.Permanent {
			ev.ProviderStatus = "permanent"
		}
	}
	d.appendEvent(ctx, ev)

	if d.cfg.SuppressOnPermanentFailure && channel == domain.ChannelEmail && domain.IsPermanent(err) {
		sup := domain.SuppressionEntry{
			EmailAddress:    address,
			SuppressionType: domain.SuppressionBounce,
			Reason:          "provider rejected recipient",
			BounceType:      "Permanent",
			BounceSubType:   "SendRejected",
			IsActive:        true,
			SuppressedAt:    d.now().UTC(),
			Metadata:        map[string]any{"error": err.Error(), "notificationId": entry.ID},
		}
		if uerr := d.Suppressions.Upsert(ctx, sup); uerr != nil {
			logger.From(ctx).Warn("proactive suppression failed", slog.String("recipient", address), slog.Any("error", uerr))
		}
	}
	return outcomeFailed
}

func (d *Dispatcher) appendEvent(ctx context.Context, ev domain.NotificationEvent) {
	ev.EventID = uuid.NewString()
	ev.Timestamp = d.now().UTC()
	if d.cfg.EventTTL > 0 {
		ev.ExpiresAt = ev.Timestamp.Add(d.cfg.EventTTL)
	}
	if err := d.Events.Append(ctx, ev); err != nil {
		logger.From(ctx).Error("append event failed",
			slog.String("notification_id", ev.NotificationID),
			slog.String("event_type", string(ev.EventType)),
			slog.Any("error", err),
		)
	}
}

// alreadyDelivered returns the channel/recipient pairs that already have a Sent event,
// so a retried or recovered entry does not resend them.
func (d *Dispatcher) alreadyDelivered(ctx context.Context, entryID string) map[string]bool {
	events, err := d.Events.ListByNotification(ctx, entryID)
	if err != nil {
		logger.From(ctx).Warn("load prior deliveries failed", slog.String("entry_id", entryID), slog.Any("error", err))
		return nil
	}
	out := make(map[string]bool)
	for _, ev := range events {
		if ev.EventType == domain.EventSent {
			out[deliveryKey(ev.Channel, ev.Recipient)] = true
		}
	}
	return out
}

func deliveryKey(channel domain.Channel, address string) string {
	return string(channel) + "|" + address
}

// activeSuppression returns the entry that blocks delivery, preferring a Complaint.
func activeSuppression(entries []domain.SuppressionEntry) *domain.SuppressionEntry {
	var found *domain.SuppressionEntry
	for i := range entries {
		e := &entries[i]
		if !e.IsActive {
			continue
		}
		if e.SuppressionType == domain.SuppressionComplaint {
			return e
		}
		if found == nil {
			found = e
		}
	}
	return found
}
