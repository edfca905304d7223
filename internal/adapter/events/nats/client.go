package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
)

type Client struct {
	nc *natspkg.Conn
	js natspkg.JetStreamContext
}

func NewClient(url string) (*Client, error) {
	nc, err := natspkg.Connect(url, natspkg.Name("renodesk"), natspkg.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &Client{nc: nc, js: js}, nil
}

func (c *Client) Close() {
	c.nc.Close()
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// EnsureStream creates the stream capturing subject if it does not exist.
func (c *Client) EnsureStream(name, subject string) error {
	_, err := c.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, natspkg.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	_, err = c.js.AddStream(&natspkg.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Storage:   natspkg.FileStorage,
		Retention: natspkg.LimitsPolicy,
		MaxAge:    14 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

// Publish sends data to a JetStream subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, natspkg.Context(ctx))
	return err
}

// Handler processes one message body.
type Handler func(ctx context.Context, data []byte) error

// ConsumeDurable subscribes a durable queue consumer with manual acks.
// A nil handler error acks; a malformed message is terminated so it is not redelivered;
// any other error naks for redelivery, up to maxDeliver attempts.
func (c *Client) ConsumeDurable(ctx context.Context, subject, durable string, maxDeliver int, handler Handler) (*natspkg.Subscription, error) {
	if maxDeliver <= 0 {
		maxDeliver = 10
	}
	return c.js.QueueSubscribe(subject, durable, func(msg *natspkg.Msg) {
		log := logger.From(ctx).With(slog.String("subject", msg.Subject))
		settle(log, msg, handler(ctx, msg.Data))
	},
		natspkg.Durable(durable),
		natspkg.ManualAck(),
		natspkg.AckExplicit(),
		natspkg.AckWait(30*time.Second),
		natspkg.MaxDeliver(maxDeliver),
		natspkg.DeliverAll(),
	)
}

type ackAction int

const (
	ackDone ackAction = iota
	ackTerm
	ackRetry
)

const redeliveryDelay = 5 * time.Second

// ackDecision maps a handler result to the acknowledgement sent back to the stream.
func ackDecision(err error) ackAction {
	switch {
	case err == nil:
		return ackDone
	case errors.Is(err, domain.ErrMalformedFeedback):
		return ackTerm
	default:
		return ackRetry
	}
}

// acker is the acknowledgement surface of a JetStream message.
type acker interface {
	Ack(opts ...natspkg.AckOpt) error
	Term(opts ...natspkg.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...natspkg.AckOpt) error
}

func settle(log *slog.Logger, msg acker, err error) ackAction {
	action := ackDecision(err)
	var aerr error
	switch action {
	case ackDone:
		aerr = msg.Ack()
	case ackTerm:
		log.Warn("terminating malformed message", slog.Any("error", err))
		aerr = msg.Term()
	default:
		log.Error("message handling failed, requesting redelivery", slog.Any("error", err))
		aerr = msg.NakWithDelay(redeliveryDelay)
	}
	if aerr != nil {
		log.Warn("ack failed", slog.Any("error", aerr))
	}
	return action
}

// Request performs a request/reply round trip.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}
