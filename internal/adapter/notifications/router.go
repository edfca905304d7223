package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/circuitbreaker"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/port"
)

// BreakerSettings configures the per-channel circuit breaker.
type BreakerSettings struct {
	Threshold   int
	Cooldown    time.Duration
	HalfOpenMax int
}

type route struct {
	sender  port.Sender
	breaker *circuitbreaker.Breaker
}

// Router delivers messages to the sender registered for their channel.
// Each channel has its own breaker so an SMS gateway outage does not stall email.
type Router struct {
	routes   map[domain.Channel]route
	settings BreakerSettings
}

func NewRouter(settings BreakerSettings) *Router {
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Router{routes: make(map[domain.Channel]route), settings: settings}
}

// Register installs the sender for a channel.
func (r *Router) Register(channel domain.Channel, sender port.Sender) *Router {
	b := circuitbreaker.NewBreaker(r.settings.Threshold, r.settings.Cooldown, r.settings.HalfOpenMax)
	// A rejected recipient says nothing about provider health.
	b.Counts = func(err error) bool { return !domain.IsPermanent(err) }
	r.routes[channel] = route{sender: sender, breaker: b}
	return r
}

// Channels lists the registered channels.
func (r *Router) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.routes))
	for ch := range r.routes {
		out = append(out, ch)
	}
	return out
}

func (r *Router) Send(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
	rt, ok := r.routes[msg.Channel]
	if !ok {
		return port.SendResult{}, &domain.ProviderError{Provider: string(msg.Channel), Code: "unsupported_channel",
			Err: fmt.Errorf("notification channel %q is not configured", msg.Channel)}
	}

	var res port.SendResult
	err := rt.breaker.Do(func() error {
		var sendErr error
		res, sendErr = rt.sender.Send(ctx, msg)
		return sendErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		logger.From(ctx).Warn("provider circuit open", slog.String("channel", string(msg.Channel)))
		return res, &domain.ProviderError{Provider: string(msg.Channel), Code: "circuit_open", Err: err}
	}
	return res, err
}

var _ port.Sender = (*Router)(nil)
