package smtp

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strogmv/renodesk/internal/config"
	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

const providerName = "smtp"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Client struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	sendMail sendMailFunc
}

func New(cfg *config.Config) *Client {
	return &Client{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailSender(),
		sendMail: smtp.SendMail,
	}
}

func (c *Client) Send(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return port.SendResult{Provider: providerName}, err
	}
	if c.Host == "" {
		return port.SendResult{Provider: providerName}, &domain.ProviderError{Provider: providerName, Permanent: true, Err: fmt.Errorf("smtp host not configured")}
	}
	addr := fmt.Sprintf("%s:%s", c.Host, c.Port)
	from := c.From
	if from == "" {
		from = c.Username
	}
	if from == "" {
		return port.SendResult{Provider: providerName}, &domain.ProviderError{Provider: providerName, Permanent: true, Err: fmt.Errorf("smtp from not configured")}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), c.Host)
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", msg.To),
		fmt.Sprintf("Subject: %s", msg.Subject),
		fmt.Sprintf("Message-ID: %s", messageID),
		fmt.Sprintf("Date: %s", time.Now().UTC().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	if msg.Reference != "" {
		headers = append(headers, fmt.Sprintf("X-Notification-ID: %s", msg.Reference))
	}
	data := strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Body

	var auth smtp.Auth
	if c.Username != "" || c.Password != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Host)
	}
	send := c.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, from, []string{msg.To}, []byte(data)); err != nil {
		return port.SendResult{Provider: providerName}, classify(err)
	}
	return port.SendResult{Provider: providerName, ProviderMessageID: messageID, ProviderStatus: "accepted"}, nil
}

// classify treats 5xx SMTP replies as permanent rejections.
func classify(err error) error {
	pe := &domain.ProviderError{Provider: providerName, Err: err}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		pe.Code = fmt.Sprintf("%d", tpErr.Code)
		if tpErr.Code >= 500 {
			pe.Permanent = true
			if tpErr.Code == 550 || tpErr.Code == 553 {
				pe.Err = fmt.Errorf("%w: %v", domain.ErrInvalidRecipient, err)
			}
		}
	}
	return pe
}

var _ port.Sender = (*Client)(nil)
