package domain

import "time"

// RequestStatus is the lifecycle state of a renovation Request.
type RequestStatus string

const (
	RequestNew                RequestStatus = "New"
	RequestPendingWalkthrough RequestStatus = "PendingWalkthrough"
	RequestWalkthroughBooked  RequestStatus = "WalkthroughBooked"
	RequestQuoted             RequestStatus = "Quoted"
	RequestWon                RequestStatus = "Won"
	RequestLost               RequestStatus = "Lost"
	RequestExpired            RequestStatus = "Expired"
)

// ExpirableStatuses lists the states the expiration processor may move to Expired.
var ExpirableStatuses = []RequestStatus{RequestNew, RequestPendingWalkthrough}

// Expirable reports whether s is eligible for automatic expiration.
func (s RequestStatus) Expirable() bool {
	for _, e := range ExpirableStatuses {
		if s == e {
			return true
		}
	}
	return false
}

// Request is the lifecycle-relevant subset of a lead record.
type Request struct {
	ID          string        `json:"id"`
	Status      RequestStatus `json:"status"`
	OfficeNotes string        `json:"officeNotes"`
	ContactID   string        `json:"contactId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
	ExpiredDate *time.Time    `json:"expiredDate,omitempty"`
}

// LastActivity returns UpdatedAt, falling back to CreatedAt.
func (r Request) LastActivity() time.Time {
	if r.UpdatedAt != nil && !r.UpdatedAt.IsZero() {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

// DaysSince returns the whole days elapsed between t and now.
func DaysSince(t, now time.Time) int {
	if now.Before(t) {
		return 0
	}
	return int(now.Sub(t) / (24 * time.Hour))
}
