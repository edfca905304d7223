package port

import (
	"context"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
)

// OutboundMessage is a rendered message for one recipient on one channel.
type OutboundMessage struct {
	Channel   domain.Channel
	To        string
	Subject   string
	Body      string
	Reference string
}

// SendResult is what a provider returns for an accepted message.
type SendResult struct {
	Provider          string
	ProviderMessageID string
	ProviderStatus    string
}

// Sender delivers a single message through a channel provider.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// SendQuota is the provider's sending allowance.
type SendQuota struct {
	Max24HourSend   float64
	MaxSendRate     float64
	SentLast24Hours float64
}

// SendDataPoint is one bucket of provider-reported sending statistics.
type SendDataPoint struct {
	Timestamp        time.Time
	DeliveryAttempts int64
	Bounces          int64
	Complaints       int64
	Rejects          int64
}

// StatisticsProvider reports provider quota and rolling send statistics.
type StatisticsProvider interface {
	GetQuota(ctx context.Context) (SendQuota, error)
	GetStatistics(ctx context.Context) ([]SendDataPoint, error)
}

// Alert summarizes triggered reputation conditions.
type Alert struct {
	Subject    string
	Conditions []string
	Metrics    domain.ReputationMetrics
	ReportURL  string
}

// Alerter delivers operational alerts.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}
