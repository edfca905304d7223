package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(2, time.Minute, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	assert.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Second, 1)
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errBoom })
	now = now.Add(2 * time.Second)
	_ = b.Do(func() error { return errBoom })
	assert.Equal(t, Open, b.State())
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	permanent := errors.New("rejected")
	b := NewBreaker(1, time.Minute, 1)
	b.Counts = func(err error) bool { return !errors.Is(err, permanent) }

	assert.ErrorIs(t, b.Do(func() error { return permanent }), permanent)
	assert.Equal(t, Closed, b.State())
}
