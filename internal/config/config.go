package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/strogmv/renodesk/internal/domain"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" env-required:"true" validate:"required"`
	RedisAddr   string `env:"REDIS_ADDR"`
	NATSURL     string `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
	HTTPAddr    string `env:"HTTP_ADDR" env-default:":8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	OTLPURL     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	DispatchInterval           time.Duration `env:"DISPATCH_INTERVAL" env-default:"2m" validate:"gt=0"`
	DispatchBatchSize          int           `env:"DISPATCH_BATCH_SIZE" env-default:"50" validate:"gt=0"`
	DispatchMaxRetries         int           `env:"DISPATCH_MAX_RETRIES" env-default:"5" validate:"gte=0"`
	DispatchRunTimeout         time.Duration `env:"DISPATCH_RUN_TIMEOUT" env-default:"15m" validate:"gt=0"`
	SuppressOnPermanentFailure bool          `env:"SUPPRESS_ON_PERMANENT_FAILURE" env-default:"false"`

	ExpirationInactivity   time.Duration `env:"EXPIRATION_INACTIVITY" env-default:"336h" validate:"gt=0"`
	ExpirationInterval     time.Duration `env:"EXPIRATION_INTERVAL" env-default:"24h" validate:"gt=0"`
	ExpirationBatchSize    int           `env:"EXPIRATION_BATCH_SIZE" env-default:"500" validate:"gt=0"`
	ExpirationTemplateID   string        `env:"EXPIRATION_TEMPLATE_ID"`
	ExpirationNotifyEmails []string      `env:"EXPIRATION_NOTIFY_EMAILS" env-separator:","`

	ReputationInterval time.Duration `env:"REPUTATION_INTERVAL" env-default:"24h" validate:"gt=0"`
	AlertBounceRate    float64       `env:"ALERT_BOUNCE_RATE" env-default:"5.0" validate:"gte=0"`
	AlertComplaintRate float64       `env:"ALERT_COMPLAINT_RATE" env-default:"0.1" validate:"gte=0"`
	AlertQuotaPercent  float64       `env:"ALERT_QUOTA_PERCENT" env-default:"80.0" validate:"gte=0,lte=100"`
	AlertMinScore      int           `env:"ALERT_MIN_SCORE" env-default:"70" validate:"gte=0,lte=100"`
	AlertRecipients    []string      `env:"ALERT_RECIPIENTS" env-separator:"," validate:"dive,email"`
	DailySendQuota     float64       `env:"DAILY_SEND_QUOTA" env-default:"50000" validate:"gte=0"`

	EventTTL       time.Duration `env:"EVENT_TTL" env-default:"2160h" validate:"gt=0"`
	FeedbackDedupe time.Duration `env:"FEEDBACK_DEDUPE_TTL" env-default:"168h"`

	EmailProvider string `env:"EMAIL_PROVIDER" env-default:"ses" validate:"oneof=ses smtp"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider ses"`
	SESConfigSet  string `env:"SES_CONFIGURATION_SET"`
	SESEndpoint   string `env:"SES_ENDPOINT"`
	AWSRegion     string `env:"AWS_REGION" env-default:"us-east-1"`

	SMTPFrom string `env:"SMTP_FROM"`
	SMTPHost string `env:"SMTP_HOST" validate:"required_if=EmailProvider smtp"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPPort string `env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `env:"SMTP_USER"`

	SMSSubject     string        `env:"SMS_SUBJECT" env-default:"sms.outbound"`
	SMSTimeout     time.Duration `env:"SMS_TIMEOUT" env-default:"10s"`
	FeedbackStream string        `env:"FEEDBACK_STREAM" env-default:"EMAIL_FEEDBACK"`
	FeedbackSubj   string        `env:"FEEDBACK_SUBJECT" env-default:"email.feedback"`
	FeedbackQueue  string        `env:"FEEDBACK_DURABLE" env-default:"feedback-consumer"`

	ReportBucket string `env:"REPORT_BUCKET"`
	S3Endpoint   string `env:"S3_ENDPOINT"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	APIToken    string   `env:"API_TOKEN" validate:"omitempty,min=16"`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	c.AlertRecipients = trimAll(c.AlertRecipients)
	c.ExpirationNotifyEmails = trimAll(c.ExpirationNotifyEmails)
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.EmailFrom != "" {
		if err := v.Var(c.EmailFrom, "email"); err != nil {
			return fmt.Errorf("config error: EMAIL_FROM: %w", err)
		}
	}
	return nil
}

// Thresholds returns the configured reputation alert thresholds.
func (c *Config) Thresholds() domain.Thresholds {
	return domain.Thresholds{
		BounceRate:    c.AlertBounceRate,
		ComplaintRate: c.AlertComplaintRate,
		QuotaPercent:  c.AlertQuotaPercent,
		MinScore:      c.AlertMinScore,
	}
}

// EmailSender returns the From address for outbound mail.
func (c *Config) EmailSender() string {
	if c.EmailFrom != "" {
		return c.EmailFrom
	}
	if c.SMTPFrom != "" {
		return c.SMTPFrom
	}
	return c.SMTPUser
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
