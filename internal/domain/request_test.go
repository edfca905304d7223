package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestLastActivityFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Request{CreatedAt: created}
	assert.Equal(t, created, r.LastActivity())

	updated := created.Add(48 * time.Hour)
	r.UpdatedAt = &updated
	assert.Equal(t, updated, r.LastActivity())
}

func TestDaysSinceFloors(t *testing.T) {
	now := time.Date(2026, 1, 21, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 20, DaysSince(now.Add(-20*24*time.Hour-23*time.Hour), now))
	assert.Equal(t, 0, DaysSince(now.Add(time.Hour), now))
}

func TestExpirableStatuses(t *testing.T) {
	assert.True(t, RequestNew.Expirable())
	assert.True(t, RequestPendingWalkthrough.Expirable())
	for _, s := range []RequestStatus{RequestWalkthroughBooked, RequestQuoted, RequestWon, RequestLost, RequestExpired} {
		assert.False(t, s.Expirable(), s)
	}
}
