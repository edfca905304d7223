package nats

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	natspkg "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/strogmv/renodesk/internal/domain"
)

type mockMsg struct {
	AckFunc          func() error
	TermFunc         func() error
	NakWithDelayFunc func(delay time.Duration) error
	calls            []string
}

func (m *mockMsg) Ack(...natspkg.AckOpt) error {
	m.calls = append(m.calls, "ack")
	if m.AckFunc != nil {
		return m.AckFunc()
	}
	return nil
}

func (m *mockMsg) Term(...natspkg.AckOpt) error {
	m.calls = append(m.calls, "term")
	if m.TermFunc != nil {
		return m.TermFunc()
	}
	return nil
}

func (m *mockMsg) NakWithDelay(delay time.Duration, _ ...natspkg.AckOpt) error {
	m.calls = append(m.calls, "nak")
	if m.NakWithDelayFunc != nil {
		return m.NakWithDelayFunc(delay)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAckDecision(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ackAction
	}{
		{"success", nil, ackDone},
		{"malformed", domain.ErrMalformedFeedback, ackTerm},
		{"wrapped malformed", fmt.Errorf("parse: %w", domain.ErrMalformedFeedback), ackTerm},
		{"storage failure", errors.New("connection reset"), ackRetry},
		{"missing row", domain.ErrNotFound, ackRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ackDecision(tt.err))
		})
	}
}

func TestSettleAcksOnSuccess(t *testing.T) {
	msg := &mockMsg{}
	assert.Equal(t, ackDone, settle(discardLogger(), msg, nil))
	assert.Equal(t, []string{"ack"}, msg.calls)
}

func TestSettleTerminatesMalformed(t *testing.T) {
	msg := &mockMsg{}
	assert.Equal(t, ackTerm, settle(discardLogger(), msg, fmt.Errorf("body: %w", domain.ErrMalformedFeedback)))
	assert.Equal(t, []string{"term"}, msg.calls)
}

func TestSettleNaksWithDelayOnFailure(t *testing.T) {
	var got time.Duration
	msg := &mockMsg{NakWithDelayFunc: func(d time.Duration) error {
		got = d
		return nil
	}}
	assert.Equal(t, ackRetry, settle(discardLogger(), msg, errors.New("db down")))
	assert.Equal(t, []string{"nak"}, msg.calls)
	assert.Equal(t, redeliveryDelay, got)
}

func TestSettleSurvivesAckError(t *testing.T) {
	msg := &mockMsg{AckFunc: func() error { return natspkg.ErrConnectionClosed }}
	assert.Equal(t, ackDone, settle(discardLogger(), msg, nil))
	assert.Equal(t, []string{"ack"}, msg.calls)
}
