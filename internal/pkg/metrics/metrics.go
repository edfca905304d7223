// Package metrics holds the Prometheus collectors for the delivery pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renodesk_delivery_attempts_total",
		Help: "Per-recipient delivery outcomes by channel.",
	}, []string{"channel", "outcome"})

	QueueEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renodesk_queue_entries_total",
		Help: "Queue entries finished by the dispatcher, by final status.",
	}, []string{"status"})

	FeedbackMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renodesk_feedback_messages_total",
		Help: "Provider feedback messages by kind and outcome.",
	}, []string{"kind", "outcome"})

	ReputationScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "renodesk_reputation_score",
		Help: "Latest computed sender reputation score.",
	})

	ReputationRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "renodesk_reputation_rate_percent",
		Help: "Latest bounce, complaint and delivery rates.",
	}, []string{"rate"})

	RequestsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renodesk_requests_expired_total",
		Help: "Lead expiration outcomes.",
	}, []string{"outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "renodesk_job_duration_seconds",
		Help:    "Duration of scheduled job runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)
