package domain

import "time"

// FeedbackKind distinguishes provider feedback reports.
type FeedbackKind string

const (
	FeedbackBounce    FeedbackKind = "Bounce"
	FeedbackComplaint FeedbackKind = "Complaint"
)

// FeedbackRecipient is one affected address in a feedback report.
type FeedbackRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

// Feedback is a normalized bounce or complaint report from the email provider.
type Feedback struct {
	Kind          FeedbackKind
	FeedbackID    string
	MessageID     string
	BounceType    string
	BounceSubType string
	ComplaintType string
	Recipients    []FeedbackRecipient
	Timestamp     time.Time
	// Raw is the provider's bounce or complaint object, kept on the suppression entry.
	Raw map[string]any
}

// DedupeKey identifies a feedback report across redeliveries.
func (f Feedback) DedupeKey() string {
	id := f.FeedbackID
	if id == "" {
		id = f.MessageID
	}
	return "feedback:" + string(f.Kind) + ":" + id
}
