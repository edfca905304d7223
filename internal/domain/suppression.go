package domain

import (
	"strings"
	"time"
)

// SuppressionType is the cause of a suppression entry.
type SuppressionType string

const (
	SuppressionBounce    SuppressionType = "Bounce"
	SuppressionComplaint SuppressionType = "Complaint"
	SuppressionManual    SuppressionType = "Manual"
)

// Valid reports whether t is a known suppression type.
func (t SuppressionType) Valid() bool {
	switch t {
	case SuppressionBounce, SuppressionComplaint, SuppressionManual:
		return true
	}
	return false
}

// SuppressionEntry is a standing "never send" rule for an address.
// Entries are keyed by (EmailAddress, SuppressionType).
type SuppressionEntry struct {
	EmailAddress    string          `json:"emailAddress"`
	SuppressionType SuppressionType `json:"suppressionType"`
	Reason          string          `json:"reason"`
	BounceType      string          `json:"bounceType,omitempty"`
	BounceSubType   string          `json:"bounceSubType,omitempty"`
	IsActive        bool            `json:"isActive"`
	SuppressedAt    time.Time       `json:"suppressedAt"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AnyActive reports whether any entry is active.
func AnyActive(entries []SuppressionEntry) bool {
	for _, e := range entries {
		if e.IsActive {
			return true
		}
	}
	return false
}
