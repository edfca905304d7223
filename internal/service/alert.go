package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/port"
)

// EmailAlerter logs alerts and mails them to the operations recipients.
type EmailAlerter struct {
	Sender     port.Sender
	Recipients []string
}

func NewEmailAlerter(sender port.Sender, recipients []string) *EmailAlerter {
	return &EmailAlerter{Sender: sender, Recipients: recipients}
}

func (a *EmailAlerter) Alert(ctx context.Context, alert port.Alert) error {
	logger.From(ctx).Warn("reputation alert",
		slog.String("subject", alert.Subject),
		slog.Any("conditions", alert.Conditions),
		slog.Int("score", alert.Metrics.ReputationScore),
	)
	if a.Sender == nil || len(a.Recipients) == 0 {
		return nil
	}

	body := renderAlert(alert)
	var errs []error
	for _, to := range a.Recipients {
		_, err := a.Sender.Send(ctx, port.OutboundMessage{
			Channel:   domain.ChannelEmail,
			To:        to,
			Subject:   alert.Subject,
			Body:      body,
			Reference: "reputation-" + alert.Metrics.Date,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func renderAlert(alert port.Alert) string {
	var b strings.Builder
	b.WriteString("Triggered conditions:\n")
	for _, c := range alert.Conditions {
		b.WriteString("  - ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(alert.Metrics.Summary())
	if alert.ReportURL != "" {
		b.WriteString("\nReport: ")
		b.WriteString(alert.ReportURL)
		b.WriteString("\n")
	}
	return b.String()
}
