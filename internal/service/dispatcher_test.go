package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/renodesk/internal/adapter/repository/memory"
	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

type dispatchFixture struct {
	queue        *memory.QueueRepository
	templates    *memory.TemplateRepository
	suppressions *memory.SuppressionRepository
	events       *memory.EventLog
	metrics      *memory.MetricsRepository
	sender       *SenderMock
	dispatcher   *Dispatcher
}

func newDispatchFixture(cfg DispatcherConfig) *dispatchFixture {
	f := &dispatchFixture{
		queue: memory.NewQueueRepository(),
		templates: memory.NewTemplateRepository(
			domain.NotificationTemplate{ID: "walkthrough", Channel: domain.ChannelEmail, Subject: "Walkthrough for {{address}}", Body: "Hi {{name}}, see you on {{date}}."},
			domain.NotificationTemplate{ID: "walkthrough", Channel: domain.ChannelSMS, Body: "Walkthrough {{date}}"},
		),
		suppressions: memory.NewSuppressionRepository(),
		events:       memory.NewEventLog(),
		metrics:      memory.NewMetricsRepository(),
		sender:       &SenderMock{},
	}
	f.dispatcher = NewDispatcher(f.queue, f.templates, f.suppressions, f.events, f.metrics, f.sender, cfg)
	return f
}

func (f *dispatchFixture) enqueue(t *testing.T, channels []domain.Channel, recipients ...string) string {
	t.Helper()
	e := &domain.NotificationQueueEntry{
		EventType:    "walkthrough.scheduled",
		Channels:     channels,
		TemplateID:   "walkthrough",
		RecipientIDs: recipients,
		Payload:      map[string]any{"name": "Dana", "date": "May 3"},
	}
	require.NoError(t, f.queue.Enqueue(context.Background(), e))
	return e.ID
}

func (f *dispatchFixture) suppress(t *testing.T, addr string, typ domain.SuppressionType, active bool) {
	t.Helper()
	require.NoError(t, f.suppressions.Upsert(context.Background(), domain.SuppressionEntry{
		EmailAddress:    addr,
		SuppressionType: typ,
		IsActive:        active,
		SuppressedAt:    time.Now(),
	}))
}

func eventTypes(events []domain.NotificationEvent) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestDispatchSkipsSuppressedRecipient(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.suppress(t, "blocked@example.com", domain.SuppressionComplaint, true)
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "Blocked@Example.com", "clean@example.com")

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueSent, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)

	require.Len(t, f.sender.Calls, 1)
	assert.Equal(t, "clean@example.com", f.sender.Calls[0].To)

	events := f.events.All()
	assert.ElementsMatch(t, []domain.EventType{domain.EventSuppressed, domain.EventSent}, eventTypes(events))
	for _, ev := range events {
		assert.Equal(t, id, ev.NotificationID)
		assert.NotEmpty(t, ev.EventID)
	}
}

func TestDispatchNeverSendsToComplaintAddress(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.suppress(t, "angry@example.com", domain.SuppressionBounce, false)
	f.suppress(t, "angry@example.com", domain.SuppressionComplaint, true)
	f.enqueue(t, []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}, "angry@example.com")

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, f.sender.CallsTo("angry@example.com"))
	assert.Equal(t, 1, report.Suppressed)
	for _, ev := range f.events.All() {
		assert.Equal(t, domain.EventSuppressed, ev.EventType)
		assert.Equal(t, "Complaint", ev.ProviderStatus)
	}
}

func TestDispatchInactiveSuppressionDoesNotBlock(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.suppress(t, "back@example.com", domain.SuppressionManual, false)
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "back@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueSent, entry.Status)
	assert.Equal(t, 1, f.sender.CallsTo("back@example.com"))
}

func TestDispatchRendersMissingPlaceholdersEmpty(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "a@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.sender.Calls, 1)
	assert.Equal(t, "Walkthrough for ", f.sender.Calls[0].Subject)
	assert.Equal(t, "Hi Dana, see you on May 3.", f.sender.Calls[0].Body)
}

func TestDispatchFailureMarksFailedAndRetries(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{MaxRetries: 5})
	down := true
	f.sender.SendFunc = func(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
		if down && msg.To == "flaky@example.com" {
			return port.SendResult{}, &domain.ProviderError{Provider: "mock", Code: "Throttling", Err: errors.New("rate exceeded")}
		}
		return port.SendResult{Provider: "mock", ProviderMessageID: "ok"}, nil
	}
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "ok@example.com", "flaky@example.com")

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueFailed, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)

	var failed []domain.NotificationEvent
	for _, ev := range f.events.All() {
		if ev.EventType == domain.EventFailed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "Throttling", failed[0].ErrorCode)
	assert.Equal(t, "transient", failed[0].ProviderStatus)

	down = false
	report, err = f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	assert.Equal(t, 1, report.Sent)

	entry, _ = f.queue.Get(id)
	assert.Equal(t, domain.QueueSent, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, 1, f.sender.CallsTo("ok@example.com"), "delivered recipient must not be resent on retry")
	assert.Equal(t, 2, f.sender.CallsTo("flaky@example.com"))

	assert.Equal(t, []domain.QueueStatus{
		domain.QueuePending, domain.QueueProcessing, domain.QueueFailed,
		domain.QueuePending, domain.QueueProcessing, domain.QueueSent,
	}, f.queue.History(id))
}

func TestDispatchStatusTransitionsAreForward(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{MaxRetries: 2})
	f.sender.SendFunc = func(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
		return port.SendResult{}, errors.New("connection reset")
	}
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "x@example.com")

	for i := 0; i < 4; i++ {
		_, err := f.dispatcher.Run(context.Background())
		require.NoError(t, err)
	}

	history := f.queue.History(id)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].CanTransition(history[i]), "%s -> %s", history[i-1], history[i])
	}
	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueDeadLettered, entry.Status)
	assert.Equal(t, 2, entry.RetryCount)
	assert.Equal(t, 2, f.sender.CallsTo("x@example.com"))
}

func TestDispatchAllSuppressedEndsSuppressed(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.suppress(t, "gone@example.com", domain.SuppressionBounce, true)
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "gone@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueSuppressed, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Empty(t, f.sender.Calls)
}

func TestDispatchMissingTemplateFails(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	e := &domain.NotificationQueueEntry{
		EventType:    "unknown",
		Channels:     []domain.Channel{domain.ChannelEmail},
		TemplateID:   "missing",
		RecipientIDs: []string{"a@example.com"},
	}
	require.NoError(t, f.queue.Enqueue(context.Background(), e))

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	entry, _ := f.queue.Get(e.ID)
	assert.Equal(t, domain.QueueFailed, entry.Status)
	assert.Empty(t, f.sender.Calls)
}

func TestDispatchSuppressedRecipientWinsOverMissingTemplate(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{MaxRetries: 3})
	f.suppress(t, "angry@example.com", domain.SuppressionComplaint, true)
	e := &domain.NotificationQueueEntry{
		EventType:    "listing.updated",
		Channels:     []domain.Channel{domain.ChannelEmail},
		TemplateID:   "missing",
		RecipientIDs: []string{"angry@example.com"},
	}
	require.NoError(t, f.queue.Enqueue(context.Background(), e))

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Suppressed)
	assert.Equal(t, 0, report.Failed)

	entry, _ := f.queue.Get(e.ID)
	assert.Equal(t, domain.QueueSuppressed, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, []domain.EventType{domain.EventSuppressed}, eventTypes(f.events.All()))
	assert.Empty(t, f.sender.Calls)
}

func TestDispatchPermanentFailureSuppressesWhenEnabled(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{SuppressOnPermanentFailure: true})
	f.sender.SendFunc = func(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
		return port.SendResult{}, &domain.ProviderError{Provider: "ses", Code: "MessageRejected", Permanent: true, Err: domain.ErrInvalidRecipient}
	}
	f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "nobody@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	entries, err := f.suppressions.FindByAddress(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SuppressionBounce, entries[0].SuppressionType)
	assert.Equal(t, "Permanent", entries[0].BounceType)
	assert.True(t, entries[0].IsActive)
}

func TestDispatchPermanentFailureLeavesSuppressionAloneByDefault(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.sender.SendFunc = func(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
		return port.SendResult{}, &domain.ProviderError{Provider: "ses", Permanent: true, Err: domain.ErrInvalidRecipient}
	}
	f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "nobody@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.suppressions.All())
}

type lostClaimQueue struct {
	*memory.QueueRepository
}

func (q lostClaimQueue) Claim(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func TestDispatchSkipsEntryClaimedElsewhere(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "a@example.com")
	f.dispatcher.Queue = lostClaimQueue{f.queue}

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.LostClaims)
	assert.Empty(t, f.sender.Calls)
}

func TestDispatchReleasesStaleClaims(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{RunTimeout: time.Minute})
	past := time.Now().Add(-time.Hour)
	f.queue.SetClock(func() time.Time { return past })
	id := f.enqueue(t, []domain.Channel{domain.ChannelEmail}, "a@example.com")
	ok, err := f.queue.Claim(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	f.queue.SetClock(time.Now)

	report, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Released)

	entry, _ := f.queue.Get(id)
	assert.Equal(t, domain.QueueSent, entry.Status)
}

func TestDispatchCountsSentEmails(t *testing.T) {
	f := newDispatchFixture(DispatcherConfig{})
	f.enqueue(t, []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}, "a@example.com", "b@example.com")

	_, err := f.dispatcher.Run(context.Background())
	require.NoError(t, err)

	m, err := f.metrics.FindByDate(context.Background(), domain.DayKey(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.TotalEmailsSent)
	assert.Len(t, f.sender.Calls, 4)
}
