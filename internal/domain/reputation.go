package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout keys one ReputationMetrics record per calendar day (UTC).
const DateLayout = "2006-01-02"

// DayKey formats t as a metrics record key.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Counter names an atomically incremented daily counter.
type Counter string

const (
	CounterSent       Counter = "total_emails_sent"
	CounterBounces    Counter = "total_bounces"
	CounterComplaints Counter = "total_complaints"
)

// ReputationMetrics is the daily sender-reputation snapshot.
type ReputationMetrics struct {
	Date               string    `json:"date"`
	TotalEmailsSent    int64     `json:"totalEmailsSent"`
	TotalBounces       int64     `json:"totalBounces"`
	TotalComplaints    int64     `json:"totalComplaints"`
	TotalRejects       int64     `json:"totalRejects"`
	BounceRate         float64   `json:"bounceRate"`
	ComplaintRate      float64   `json:"complaintRate"`
	DeliveryRate       float64   `json:"deliveryRate"`
	ReputationScore    int       `json:"reputationScore"`
	SendingQuotaUsed   float64   `json:"sendingQuotaUsed"`
	SendingQuotaMax    float64   `json:"sendingQuotaMax"`
	MaxSendRate        float64   `json:"maxSendRate"`
	QuotaUsagePercent  float64   `json:"quotaUsagePercent"`
	BounceRateAlert    bool      `json:"bounceRateAlert"`
	ComplaintRateAlert bool      `json:"complaintRateAlert"`
	QuotaAlert         bool      `json:"quotaAlert"`
	LowScoreAlert      bool      `json:"lowScoreAlert"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Rates holds the three derived percentages.
type Rates struct {
	Bounce    float64
	Complaint float64
	Delivery  float64
}

// ComputeRates derives bounce, complaint and delivery percentages. All rates are 0 when sent is 0.
func ComputeRates(sent, bounces, complaints int64) Rates {
	if sent <= 0 {
		return Rates{}
	}
	total := float64(sent)
	return Rates{
		Bounce:    float64(bounces) / total * 100,
		Complaint: float64(complaints) / total * 100,
		Delivery:  float64(sent-bounces-complaints) / total * 100,
	}
}

// ComputeScore maps rates to a 0-100 reputation score.
func ComputeScore(r Rates) int {
	score := 100
	switch {
	case r.Bounce > 10:
		score -= 40
	case r.Bounce > 5:
		score -= 25
	case r.Bounce > 2:
		score -= 10
	}
	switch {
	case r.Complaint > 0.5:
		score -= 50
	case r.Complaint > 0.1:
		score -= 30
	case r.Complaint > 0.05:
		score -= 15
	}
	switch {
	case r.Delivery > 98:
		score += 5
	case r.Delivery < 90:
		score -= 15
	case r.Delivery < 95:
		score -= 5
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// QuotaUsage returns sentLast24h as a percentage of max24h, or 0 when max is unknown.
func QuotaUsage(sentLast24h, max24h float64) float64 {
	if max24h <= 0 {
		return 0
	}
	return sentLast24h / max24h * 100
}

// Thresholds configures when reputation alerts fire.
type Thresholds struct {
	BounceRate    float64
	ComplaintRate float64
	QuotaPercent  float64
	MinScore      int
}

// DefaultThresholds are the stock alert thresholds.
var DefaultThresholds = Thresholds{
	BounceRate:    5.0,
	ComplaintRate: 0.1,
	QuotaPercent:  80.0,
	MinScore:      70,
}

// ApplyAlerts sets the alert flags on m from its rates and score.
func (m *ReputationMetrics) ApplyAlerts(t Thresholds) {
	m.BounceRateAlert = m.BounceRate > t.BounceRate
	m.ComplaintRateAlert = m.ComplaintRate > t.ComplaintRate
	m.QuotaAlert = m.QuotaUsagePercent > t.QuotaPercent
	m.LowScoreAlert = m.ReputationScore < t.MinScore
}

// Alerting reports whether any alert flag is set.
func (m ReputationMetrics) Alerting() bool {
	return m.BounceRateAlert || m.ComplaintRateAlert || m.QuotaAlert || m.LowScoreAlert
}

// AlertConditions lists a line per triggered flag with its numeric value.
func (m ReputationMetrics) AlertConditions(t Thresholds) []string {
	var out []string
	if m.BounceRateAlert {
		out = append(out, fmt.Sprintf("bounce rate %.2f%% exceeds %.2f%%", m.BounceRate, t.BounceRate))
	}
	if m.ComplaintRateAlert {
		out = append(out, fmt.Sprintf("complaint rate %.3f%% exceeds %.3f%%", m.ComplaintRate, t.ComplaintRate))
	}
	if m.QuotaAlert {
		out = append(out, fmt.Sprintf("quota usage %.1f%% exceeds %.1f%% (%.0f of %.0f)", m.QuotaUsagePercent, t.QuotaPercent, m.SendingQuotaUsed, m.SendingQuotaMax))
	}
	if m.LowScoreAlert {
		out = append(out, fmt.Sprintf("reputation score %d below %d", m.ReputationScore, t.MinScore))
	}
	return out
}

// Summary renders the snapshot as plain text for alert bodies.
func (m ReputationMetrics) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", m.Date)
	fmt.Fprintf(&b, "Sent: %d  Bounces: %d  Complaints: %d\n", m.TotalEmailsSent, m.TotalBounces, m.TotalComplaints)
	fmt.Fprintf(&b, "Bounce rate: %.2f%%  Complaint rate: %.3f%%  Delivery rate: %.2f%%\n", m.BounceRate, m.ComplaintRate, m.DeliveryRate)
	fmt.Fprintf(&b, "Reputation score: %d\n", m.ReputationScore)
	fmt.Fprintf(&b, "Quota: %.0f / %.0f (%.1f%%)\n", m.SendingQuotaUsed, m.SendingQuotaMax, m.QuotaUsagePercent)
	return b.String()
}
