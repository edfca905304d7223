package domain

import "time"

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// QueueStatus is the lifecycle state of a NotificationQueueEntry.
type QueueStatus string

const (
	QueuePending      QueueStatus = "Pending"
	QueueProcessing   QueueStatus = "Processing"
	QueueSent         QueueStatus = "Sent"
	QueueFailed       QueueStatus = "Failed"
	QueueSuppressed   QueueStatus = "Suppressed"
	QueueDeadLettered QueueStatus = "DeadLettered"
)

// Terminal reports whether the status ends a processing pass.
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueSent, QueueFailed, QueueSuppressed, QueueDeadLettered:
		return true
	}
	return false
}

// CanTransition reports whether an entry may move from s to next.
// Failed -> Pending is the explicit retry path; everything else only moves forward.
func (s QueueStatus) CanTransition(next QueueStatus) bool {
	switch s {
	case QueuePending:
		return next == QueueProcessing
	case QueueProcessing:
		return next.Terminal() || next == QueuePending
	case QueueFailed:
		return next == QueuePending || next == QueueDeadLettered
	}
	return false
}

// NotificationQueueEntry is a unit of pending delivery work.
type NotificationQueueEntry struct {
	ID           string         `json:"id"`
	EventType    string         `json:"eventType" validate:"required"`
	Channels     []Channel      `json:"channels" validate:"required,min=1,dive,oneof=email sms"`
	Payload      map[string]any `json:"payload"`
	TemplateID   string         `json:"templateId" validate:"required"`
	RecipientIDs []string       `json:"recipientIds" validate:"required,min=1,dive,required"`
	Status       QueueStatus    `json:"status"`
	RetryCount   int            `json:"retryCount"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// NotificationTemplate is a named, channel-typed message template.
type NotificationTemplate struct {
	ID      string  `json:"id"`
	Channel Channel `json:"channel"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// EventType tags a NotificationEvent.
type EventType string

const (
	EventSent       EventType = "Sent"
	EventFailed     EventType = "Failed"
	EventSuppressed EventType = "Suppressed"
	EventBounce     EventType = "Bounce"
	EventComplaint  EventType = "Complaint"
)

// NotificationEvent is an append-only record of a delivery attempt or provider feedback.
type NotificationEvent struct {
	EventID        string         `json:"eventId"`
	NotificationID string         `json:"notificationId"`
	EventType      EventType      `json:"eventType"`
	Channel        Channel        `json:"channel"`
	Recipient      string         `json:"recipient"`
	Provider       string         `json:"provider"`
	ProviderStatus string         `json:"providerStatus,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

// EventCounts aggregates event log entries by type.
type EventCounts struct {
	Sent       int64
	Bounces    int64
	Complaints int64
	Failed     int64
}
