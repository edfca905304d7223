// Package smsgateway delivers SMS through a gateway service reached over NATS request/reply.
package smsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

const providerName = "smsgateway"

// Requester performs a request/reply round trip.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

type request struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

type reply struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
}

type Client struct {
	requester Requester
	subject   string
	timeout   time.Duration
}

func New(requester Requester, subject string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{requester: requester, subject: subject, timeout: timeout}
}

func (c *Client) Send(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
	res := port.SendResult{Provider: providerName}
	body, err := json.Marshal(request{To: msg.To, Body: msg.Body, Reference: msg.Reference})
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.requester.Request(ctx, c.subject, body)
	if err != nil {
		return res, &domain.ProviderError{Provider: providerName, Code: "request", Err: err}
	}

	var rep reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return res, &domain.ProviderError{Provider: providerName, Code: "bad_reply", Err: fmt.Errorf("decode gateway reply: %w", err)}
	}
	if rep.Error != "" {
		perr := errors.New(rep.Error)
		if rep.Permanent {
			perr = fmt.Errorf("%w: %s", domain.ErrInvalidRecipient, rep.Error)
		}
		return res, &domain.ProviderError{Provider: providerName, Code: rep.Code, Permanent: rep.Permanent, Err: perr}
	}
	res.ProviderMessageID = rep.MessageID
	res.ProviderStatus = rep.Status
	return res, nil
}

var _ port.Sender = (*Client)(nil)
