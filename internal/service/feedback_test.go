package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/renodesk/internal/adapter/repository/memory"
	"github.com/strogmv/renodesk/internal/domain"
)

const permanentBounce = `{
  "notificationType": "Bounce",
  "bounce": {
    "bounceType": "Permanent",
    "bounceSubType": "General",
    "bouncedRecipients": [{"emailAddress": "A@X.com", "action": "failed", "status": "5.1.1", "diagnosticCode": "smtp; 550 5.1.1 user unknown"}],
    "timestamp": "2026-03-02T10:15:00.000Z",
    "feedbackId": "fb-bounce-1"
  },
  "mail": {"messageId": "ses-msg-1"}
}`

const complaint = `{
  "eventType": "Complaint",
  "complaint": {
    "complainedRecipients": [{"emailAddress": "angry@x.com"}],
    "complaintFeedbackType": "abuse",
    "timestamp": "2026-03-02T11:00:00.000Z",
    "feedbackId": "fb-complaint-1"
  },
  "mail": {"messageId": "ses-msg-2"}
}`

type feedbackFixture struct {
	suppressions *memory.SuppressionRepository
	events       *memory.EventLog
	metrics      *memory.MetricsRepository
	consumer     *FeedbackConsumer
}

func newFeedbackFixture() *feedbackFixture {
	f := &feedbackFixture{
		suppressions: memory.NewSuppressionRepository(),
		events:       memory.NewEventLog(),
		metrics:      memory.NewMetricsRepository(),
	}
	f.consumer = NewFeedbackConsumer(f.suppressions, f.events, f.metrics, memory.NewIdempotencyStore(), memory.TxManager{}, FeedbackConfig{EventTTL: time.Hour})
	return f
}

func snsWrap(t *testing.T, msg string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{"Type": "Notification", "MessageId": "sns-1", "Message": msg})
	require.NoError(t, err)
	return b
}

func TestFeedbackPermanentBounceSuppresses(t *testing.T) {
	f := newFeedbackFixture()
	ctx := context.Background()

	require.NoError(t, f.consumer.Handle(ctx, snsWrap(t, permanentBounce)))

	entries, err := f.suppressions.FindByAddress(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SuppressionBounce, entries[0].SuppressionType)
	assert.Equal(t, "Permanent", entries[0].BounceType)
	assert.Equal(t, "General", entries[0].BounceSubType)
	assert.True(t, entries[0].IsActive)
	assert.Equal(t, "smtp; 550 5.1.1 user unknown", entries[0].Metadata["diagnosticCode"])

	m, err := f.metrics.FindByDate(ctx, domain.DayKey(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalBounces)

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBounce, events[0].EventType)
	assert.Equal(t, "ses-msg-1", events[0].NotificationID)
	assert.Equal(t, "a@x.com", events[0].Recipient)
	assert.False(t, events[0].ExpiresAt.IsZero())
}

func TestFeedbackComplaintSuppresses(t *testing.T) {
	f := newFeedbackFixture()
	ctx := context.Background()

	require.NoError(t, f.consumer.Handle(ctx, []byte(complaint)))

	entries, err := f.suppressions.FindByAddress(ctx, "angry@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SuppressionComplaint, entries[0].SuppressionType)
	assert.Equal(t, "complaint: abuse", entries[0].Reason)

	m, err := f.metrics.FindByDate(ctx, domain.DayKey(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalComplaints)
	assert.EqualValues(t, 0, m.TotalBounces)
}

func TestFeedbackKeepsProviderPayloadOnSuppression(t *testing.T) {
	f := newFeedbackFixture()
	ctx := context.Background()

	require.NoError(t, f.consumer.Handle(ctx, snsWrap(t, permanentBounce)))
	require.NoError(t, f.consumer.Handle(ctx, []byte(complaint)))

	bounced, err := f.suppressions.FindByAddress(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, bounced, 1)
	provider, ok := bounced[0].Metadata["provider"].(map[string]any)
	require.True(t, ok, "bounce entry carries the provider object")
	assert.Equal(t, "Permanent", provider["bounceType"])
	assert.Equal(t, "fb-bounce-1", provider["feedbackId"])
	assert.Len(t, provider["bouncedRecipients"], 1)

	complained, err := f.suppressions.FindByAddress(ctx, "angry@x.com")
	require.NoError(t, err)
	require.Len(t, complained, 1)
	provider, ok = complained[0].Metadata["provider"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abuse", provider["complaintFeedbackType"])

	for _, ev := range f.events.All() {
		assert.NotContains(t, ev.Metadata, "provider")
	}
}

func TestFeedbackTransientBounceStillSuppresses(t *testing.T) {
	f := newFeedbackFixture()
	msg := `{"notificationType":"Bounce","bounce":{"bounceType":"Transient","bounceSubType":"MailboxFull","bouncedRecipients":[{"emailAddress":"full@x.com"}],"feedbackId":"fb-t"},"mail":{"messageId":"m"}}`

	require.NoError(t, f.consumer.Handle(context.Background(), []byte(msg)))

	entries, _ := f.suppressions.FindByAddress(context.Background(), "full@x.com")
	require.Len(t, entries, 1)
	assert.Equal(t, "Transient", entries[0].BounceType)
}

func TestFeedbackRedeliveryIsHarmless(t *testing.T) {
	f := newFeedbackFixture()
	ctx := context.Background()

	report := f.consumer.HandleBatch(ctx, [][]byte{[]byte(permanentBounce), []byte(permanentBounce), snsWrap(t, permanentBounce)})
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Duplicates)

	assert.Len(t, f.suppressions.All(), 1)
	assert.Len(t, f.events.All(), 1)
	m, err := f.metrics.FindByDate(ctx, domain.DayKey(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.TotalBounces)
}

func TestFeedbackUpsertKeepsOneEntryPerCause(t *testing.T) {
	f := newFeedbackFixture()
	f.consumer.Idempotency = nil
	ctx := context.Background()

	require.NoError(t, f.consumer.Handle(ctx, []byte(permanentBounce)))
	require.NoError(t, f.consumer.Handle(ctx, []byte(permanentBounce)))

	assert.Len(t, f.suppressions.All(), 1)
}

func TestFeedbackMalformedMessageDoesNotBlockBatch(t *testing.T) {
	f := newFeedbackFixture()

	report := f.consumer.HandleBatch(context.Background(), [][]byte{
		[]byte(`{not json`),
		[]byte(`{"notificationType":"Delivery","mail":{"messageId":"x"}}`),
		[]byte(`{"notificationType":"Bounce","mail":{"messageId":"x"}}`),
		[]byte(complaint),
	})

	assert.Equal(t, 3, report.Malformed)
	assert.Equal(t, 1, report.Processed)
	assert.Len(t, f.suppressions.All(), 1)
}

func TestFeedbackMalformedErrorIsTyped(t *testing.T) {
	f := newFeedbackFixture()
	err := f.consumer.Handle(context.Background(), []byte(`[]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedFeedback))
}

func TestParseFeedback(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    domain.FeedbackKind
		key     string
		wantErr bool
	}{
		{name: "raw bounce", raw: permanentBounce, kind: domain.FeedbackBounce, key: "feedback:Bounce:fb-bounce-1"},
		{name: "event publishing complaint", raw: complaint, kind: domain.FeedbackComplaint, key: "feedback:Complaint:fb-complaint-1"},
		{name: "falls back to message id", raw: `{"notificationType":"Complaint","complaint":{"complainedRecipients":[{"emailAddress":"a@x.com"}]},"mail":{"messageId":"m-9"}}`, kind: domain.FeedbackComplaint, key: "feedback:Complaint:m-9"},
		{name: "no recipients", raw: `{"notificationType":"Complaint","complaint":{"feedbackId":"f"},"mail":{"messageId":"m"}}`, wantErr: true},
		{name: "no ids", raw: `{"notificationType":"Complaint","complaint":{"complainedRecipients":[{"emailAddress":"a@x.com"}]}}`, wantErr: true},
		{name: "empty envelope", raw: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := ParseFeedback([]byte(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrMalformedFeedback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, fb.Kind)
			assert.Equal(t, tt.key, fb.DedupeKey())
		})
	}
}
