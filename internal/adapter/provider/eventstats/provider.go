// Package eventstats reports sending statistics from the local event log, for
// email providers that expose no statistics API.
package eventstats

import (
	"context"
	"fmt"
	"time"

	"github.com/strogmv/renodesk/internal/port"
)

type Provider struct {
	events     port.EventLog
	dailyQuota float64
	window     time.Duration
	now        func() time.Time
}

func New(events port.EventLog, dailyQuota float64) *Provider {
	return &Provider{events: events, dailyQuota: dailyQuota, window: 24 * time.Hour, now: time.Now}
}

func (p *Provider) GetQuota(ctx context.Context) (port.SendQuota, error) {
	counts, err := p.events.CountSince(ctx, p.now().Add(-24*time.Hour))
	if err != nil {
		return port.SendQuota{}, fmt.Errorf("count events: %w", err)
	}
	return port.SendQuota{
		Max24HourSend:   p.dailyQuota,
		SentLast24Hours: float64(counts.Sent + counts.Failed),
	}, nil
}

func (p *Provider) GetStatistics(ctx context.Context) ([]port.SendDataPoint, error) {
	now := p.now()
	counts, err := p.events.CountSince(ctx, now.Add(-p.window))
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	return []port.SendDataPoint{{
		Timestamp:        now.UTC(),
		DeliveryAttempts: counts.Sent,
		Bounces:          counts.Bounces,
		Complaints:       counts.Complaints,
		Rejects:          counts.Failed,
	}}, nil
}

var _ port.StatisticsProvider = (*Provider)(nil)
