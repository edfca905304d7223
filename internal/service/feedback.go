package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/metrics"
	"github.com/strogmv/renodesk/internal/pkg/tracing"
	"github.com/strogmv/renodesk/internal/port"
)

// FeedbackConfig tunes the feedback consumer.
type FeedbackConfig struct {
	EventTTL time.Duration
	// DedupeTTL is how long a processed feedback id is remembered.
	DedupeTTL time.Duration
}

// FeedbackReport counts the outcome of a batch.
type FeedbackReport struct {
	Processed  int
	Duplicates int
	Malformed  int
	Failed     int
}

// FeedbackConsumer turns provider bounce and complaint reports into suppression state.
type FeedbackConsumer struct {
	Suppressions port.SuppressionRepository
	Events       port.EventLog
	Metrics      port.MetricsRepository
	Idempotency  port.IdempotencyStore
	Tx           port.TxManager

	cfg FeedbackConfig
	now func() time.Time
}

func NewFeedbackConsumer(suppressions port.SuppressionRepository, events port.EventLog, metricsRepo port.MetricsRepository, idem port.IdempotencyStore, tx port.TxManager, cfg FeedbackConfig) *FeedbackConsumer {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 7 * 24 * time.Hour
	}
	return &FeedbackConsumer{
		Suppressions: suppressions,
		Events:       events,
		Metrics:      metricsRepo,
		Idempotency:  idem,
		Tx:           tx,
		cfg:          cfg,
		now:          time.Now,
	}
}

// HandleBatch processes every message, logging and skipping the ones that fail.
func (c *FeedbackConsumer) HandleBatch(ctx context.Context, messages [][]byte) FeedbackReport {
	var report FeedbackReport
	for i, raw := range messages {
		dup, err := c.handle(ctx, raw)
		switch {
		case errors.Is(err, domain.ErrMalformedFeedback):
			report.Malformed++
			logger.From(ctx).Warn("skipping malformed feedback message", slog.Int("index", i), slog.Any("error", err))
		case err != nil:
			report.Failed++
			logger.From(ctx).Error("feedback message failed", slog.Int("index", i), slog.Any("error", err))
		case dup:
			report.Duplicates++
		default:
			report.Processed++
		}
	}
	return report
}

// Handle processes one provider feedback message. Redelivered messages are no-ops.
// A malformed message returns an error wrapping domain.ErrMalformedFeedback.
func (c *FeedbackConsumer) Handle(ctx context.Context, raw []byte) error {
	_, err := c.handle(ctx, raw)
	return err
}

func (c *FeedbackConsumer) handle(ctx context.Context, raw []byte) (bool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "feedback.handle")
	defer span.End()

	fb, err := ParseFeedback(raw)
	if err != nil {
		metrics.FeedbackMessages.WithLabelValues("unknown", "malformed").Inc()
		span.RecordError(err)
		return false, err
	}
	kind := string(fb.Kind)
	span.SetAttributes(attribute.String("feedback.kind", kind), attribute.String("feedback.message_id", fb.MessageID))
	log := logger.From(ctx).With(slog.String("feedback_kind", kind), slog.String("message_id", fb.MessageID))

	key := fb.DedupeKey()
	if c.Idempotency != nil {
		seen, err := c.Idempotency.Check(ctx, key)
		if err != nil {
			log.Warn("idempotency check failed, processing anyway", slog.Any("error", err))
		} else if seen {
			metrics.FeedbackMessages.WithLabelValues(kind, "duplicate").Inc()
			log.Debug("duplicate feedback message")
			return true, nil
		}
	}

	err = c.withTx(ctx, func(ctx context.Context) error {
		for _, r := range fb.Recipients {
			if err := c.apply(ctx, fb, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.FeedbackMessages.WithLabelValues(kind, "failed").Inc()
		span.RecordError(err)
		return false, fmt.Errorf("apply %s feedback %s: %w", kind, fb.MessageID, err)
	}

	c.nudgeMetrics(ctx, fb)

	if c.Idempotency != nil {
		if err := c.Idempotency.Save(ctx, key, c.cfg.DedupeTTL); err != nil {
			log.Warn("idempotency save failed", slog.Any("error", err))
		}
	}
	metrics.FeedbackMessages.WithLabelValues(kind, "processed").Inc()
	log.Info("feedback applied", slog.Int("recipients", len(fb.Recipients)))
	return false, nil
}

func (c *FeedbackConsumer) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.Tx == nil {
		return fn(ctx)
	}
	return c.Tx.WithTx(ctx, fn)
}

// apply upserts the suppression entry and appends the feedback event for one recipient.
func (c *FeedbackConsumer) apply(ctx context.Context, fb domain.Feedback, r domain.FeedbackRecipient) error {
	address := domain.NormalizeAddress(r.EmailAddress)
	at := fb.Timestamp
	if at.IsZero() {
		at = c.now().UTC()
	}

	meta := map[string]any{
		"feedbackId": fb.FeedbackID,
		"messageId":  fb.MessageID,
	}
	if r.DiagnosticCode != "" {
		meta["diagnosticCode"] = r.DiagnosticCode
	}
	if r.Status != "" {
		meta["status"] = r.Status
	}
	if r.Action != "" {
		meta["action"] = r.Action
	}

	entryMeta := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		entryMeta[k] = v
	}
	if len(fb.Raw) > 0 {
		entryMeta["provider"] = fb.Raw
	}
	entry := domain.SuppressionEntry{
		EmailAddress: address,
		IsActive:     true,
		SuppressedAt: at,
		Metadata:     entryMeta,
	}
	ev := domain.NotificationEvent{
		EventID:        uuid.NewString(),
		NotificationID: fb.MessageID,
		Channel:        domain.ChannelEmail,
		Recipient:      address,
		Provider:       "ses",
		Metadata:       meta,
		Timestamp:      at,
	}
	switch fb.Kind {
	case domain.FeedbackBounce:
		entry.SuppressionType = domain.SuppressionBounce
		entry.BounceType = fb.BounceType
		entry.BounceSubType = fb.BounceSubType
		entry.Reason = strings.TrimSpace(fmt.Sprintf("%s bounce: %s %s", fb.BounceType, fb.BounceSubType, r.DiagnosticCode))
		ev.EventType = domain.EventBounce
		ev.ProviderStatus = fb.BounceType
		ev.ErrorCode = r.Status
		ev.ErrorMessage = r.DiagnosticCode
	case domain.FeedbackComplaint:
		entry.SuppressionType = domain.SuppressionComplaint
		entry.Reason = "complaint"
		if fb.ComplaintType != "" {
			entry.Reason = "complaint: " + fb.ComplaintType
		}
		ev.EventType = domain.EventComplaint
		ev.ProviderStatus = fb.ComplaintType
	}
	if c.cfg.EventTTL > 0 {
		ev.ExpiresAt = c.now().UTC().Add(c.cfg.EventTTL)
	}

	if err := c.Suppressions.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert suppression %s: %w", address, err)
	}
	if err := c.Events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", ev.EventType, err)
	}
	return nil
}

// nudgeMetrics increments today's bounce or complaint counter. Failures are logged only.
func (c *FeedbackConsumer) nudgeMetrics(ctx context.Context, fb domain.Feedback) {
	if c.Metrics == nil || len(fb.Recipients) == 0 {
		return
	}
	counter := domain.CounterBounces
	if fb.Kind == domain.FeedbackComplaint {
		counter = domain.CounterComplaints
	}
	if err := c.Metrics.Increment(ctx, domain.DayKey(c.now()), counter, int64(len(fb.Recipients))); err != nil {
		logger.From(ctx).Warn("increment feedback counter failed", slog.String("counter", string(counter)), slog.Any("error", err))
	}
}

type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`
	Bounce           *struct {
		BounceType        string                     `json:"bounceType"`
		BounceSubType     string                     `json:"bounceSubType"`
		BouncedRecipients []domain.FeedbackRecipient `json:"bouncedRecipients"`
		Timestamp         string                     `json:"timestamp"`
		FeedbackID        string                     `json:"feedbackId"`
	} `json:"bounce"`
	Complaint *struct {
		ComplainedRecipients  []domain.FeedbackRecipient `json:"complainedRecipients"`
		ComplaintFeedbackType string                     `json:"complaintFeedbackType"`
		Timestamp             string                     `json:"timestamp"`
		FeedbackID            string                     `json:"feedbackId"`
	} `json:"complaint"`
	Mail struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
}

// ParseFeedback decodes a provider feedback message, either raw or wrapped in an SNS envelope.
func ParseFeedback(raw []byte) (domain.Feedback, error) {
	var fb domain.Feedback

	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fb, fmt.Errorf("%w: %v", domain.ErrMalformedFeedback, err)
	}
	body := raw
	if env.Message != "" {
		body = []byte(env.Message)
	}

	var n sesNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return fb, fmt.Errorf("%w: %v", domain.ErrMalformedFeedback, err)
	}
	var rawMap map[string]any
	if err := json.Unmarshal(body, &rawMap); err != nil {
		return fb, fmt.Errorf("%w: %v", domain.ErrMalformedFeedback, err)
	}

	kind := n.NotificationType
	if kind == "" {
		kind = n.EventType
	}
	fb.MessageID = n.Mail.MessageID

	var stamp string
	switch kind {
	case string(domain.FeedbackBounce):
		if n.Bounce == nil {
			return fb, fmt.Errorf("%w: bounce notification without bounce object", domain.ErrMalformedFeedback)
		}
		fb.Kind = domain.FeedbackBounce
		fb.FeedbackID = n.Bounce.FeedbackID
		fb.BounceType = n.Bounce.BounceType
		fb.BounceSubType = n.Bounce.BounceSubType
		fb.Recipients = n.Bounce.BouncedRecipients
		fb.Raw, _ = rawMap["bounce"].(map[string]any)
		stamp = n.Bounce.Timestamp
	case string(domain.FeedbackComplaint):
		if n.Complaint == nil {
			return fb, fmt.Errorf("%w: complaint notification without complaint object", domain.ErrMalformedFeedback)
		}
		fb.Kind = domain.FeedbackComplaint
		fb.FeedbackID = n.Complaint.FeedbackID
		fb.ComplaintType = n.Complaint.ComplaintFeedbackType
		fb.Recipients = n.Complaint.ComplainedRecipients
		fb.Raw, _ = rawMap["complaint"].(map[string]any)
		stamp = n.Complaint.Timestamp
	default:
		return fb, fmt.Errorf("%w: unsupported notification type %q", domain.ErrMalformedFeedback, kind)
	}

	if fb.FeedbackID == "" && fb.MessageID == "" {
		return fb, fmt.Errorf("%w: no feedback or message id", domain.ErrMalformedFeedback)
	}
	recipients := fb.Recipients[:0]
	for _, r := range fb.Recipients {
		if strings.TrimSpace(r.EmailAddress) != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return fb, fmt.Errorf("%w: no recipients", domain.ErrMalformedFeedback)
	}
	fb.Recipients = recipients

	if stamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			fb.Timestamp = t.UTC()
		}
	}
	return fb, nil
}
