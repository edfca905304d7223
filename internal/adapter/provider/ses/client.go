package ses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

const providerName = "ses"

// API is the subset of the SES client used here.
type API interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	GetSendQuota(ctx context.Context, in *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
	GetSendStatistics(ctx context.Context, in *ses.GetSendStatisticsInput, optFns ...func(*ses.Options)) (*ses.GetSendStatisticsOutput, error)
}

// Client sends email through SES and reports its quota and statistics.
type Client struct {
	api       API
	from      string
	configSet string
}

func New(ctx context.Context, region, endpoint, from, configSet string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := ses.NewFromConfig(cfg, func(o *ses.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewWithAPI(api, from, configSet), nil
}

func NewWithAPI(api API, from, configSet string) *Client {
	return &Client{api: api, from: from, configSet: configSet}
}

func (c *Client) Send(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
	in := &ses.SendEmailInput{
		Source: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
	}
	if c.configSet != "" {
		in.ConfigurationSetName = aws.String(c.configSet)
	}
	if msg.Reference != "" {
		in.Tags = []types.MessageTag{{Name: aws.String("notification_id"), Value: aws.String(msg.Reference)}}
	}

	out, err := c.api.SendEmail(ctx, in)
	if err != nil {
		return port.SendResult{Provider: providerName}, classify(err)
	}
	return port.SendResult{
		Provider:          providerName,
		ProviderMessageID: aws.ToString(out.MessageId),
		ProviderStatus:    "accepted",
	}, nil
}

func (c *Client) GetQuota(ctx context.Context) (port.SendQuota, error) {
	out, err := c.api.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return port.SendQuota{}, fmt.Errorf("ses get send quota: %w", err)
	}
	return port.SendQuota{
		Max24HourSend:   out.Max24HourSend,
		MaxSendRate:     out.MaxSendRate,
		SentLast24Hours: out.SentLast24Hours,
	}, nil
}

// GetStatistics returns SES's rolling two-week window of 15-minute data points.
func (c *Client) GetStatistics(ctx context.Context) ([]port.SendDataPoint, error) {
	out, err := c.api.GetSendStatistics(ctx, &ses.GetSendStatisticsInput{})
	if err != nil {
		return nil, fmt.Errorf("ses get send statistics: %w", err)
	}
	points := make([]port.SendDataPoint, 0, len(out.SendDataPoints))
	for _, p := range out.SendDataPoints {
		var ts time.Time
		if p.Timestamp != nil {
			ts = *p.Timestamp
		}
		points = append(points, port.SendDataPoint{
			Timestamp:        ts,
			DeliveryAttempts: p.DeliveryAttempts,
			Bounces:          p.Bounces,
			Complaints:       p.Complaints,
			Rejects:          p.Rejects,
		})
	}
	return points, nil
}

// classify wraps an SES error as a ProviderError. Rejections and configuration
// errors are permanent; throttling and transport errors are transient.
func classify(err error) error {
	pe := &domain.ProviderError{Provider: providerName, Err: err}

	var rejected *types.MessageRejected
	var unverified *types.MailFromDomainNotVerifiedException
	var noConfigSet *types.ConfigurationSetDoesNotExistException
	switch {
	case errors.As(err, &rejected):
		pe.Code = "MessageRejected"
		pe.Permanent = true
		pe.Err = fmt.Errorf("%w: %v", domain.ErrInvalidRecipient, err)
		return pe
	case errors.As(err, &unverified), errors.As(err, &noConfigSet):
		pe.Permanent = true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
		if apiErr.ErrorFault() == smithy.FaultClient && pe.Code != "Throttling" {
			pe.Permanent = true
		}
	}
	return pe
}

var (
	_ port.Sender             = (*Client)(nil)
	_ port.StatisticsProvider = (*Client)(nil)
)
