package eventstats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/renodesk/internal/adapter/repository/memory"
	"github.com/strogmv/renodesk/internal/domain"
)

func TestStatisticsFromEventLog(t *testing.T) {
	log := memory.NewEventLog()
	ctx := context.Background()
	now := time.Now()
	add := func(typ domain.EventType, ch domain.Channel, at time.Time) {
		require.NoError(t, log.Append(ctx, domain.NotificationEvent{EventID: string(typ) + at.String() + string(ch), EventType: typ, Channel: ch, Recipient: "a@x.com", Timestamp: at}))
	}
	add(domain.EventSent, domain.ChannelEmail, now.Add(-time.Hour))
	add(domain.EventSent, domain.ChannelEmail, now.Add(-2*time.Hour))
	add(domain.EventSent, domain.ChannelSMS, now.Add(-time.Hour))
	add(domain.EventBounce, domain.ChannelEmail, now.Add(-time.Hour))
	add(domain.EventSent, domain.ChannelEmail, now.Add(-48*time.Hour))

	p := New(log, 1000)
	points, err := p.GetStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.EqualValues(t, 2, points[0].DeliveryAttempts)
	assert.EqualValues(t, 1, points[0].Bounces)

	q, err := p.GetQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, q.Max24HourSend)
	assert.Equal(t, 2.0, q.SentLast24Hours)
}
