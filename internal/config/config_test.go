package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/renodesk")
	t.Setenv("EMAIL_FROM", "noreply@example.com")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, owner@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.DispatchInterval)
	assert.Equal(t, 14*24*time.Hour, cfg.ExpirationInactivity)
	assert.Equal(t, 15*time.Minute, cfg.DispatchRunTimeout)
	assert.Equal(t, []string{"ops@example.com", "owner@example.com"}, cfg.AlertRecipients)

	th := cfg.Thresholds()
	assert.Equal(t, 5.0, th.BounceRate)
	assert.Equal(t, 0.1, th.ComplaintRate)
	assert.Equal(t, 80.0, th.QuotaPercent)
	assert.Equal(t, 70, th.MinScore)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/renodesk")
	t.Setenv("EMAIL_PROVIDER", "pigeon")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateSMTPRequiresHost(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/renodesk")
	t.Setenv("EMAIL_PROVIDER", "smtp")
	t.Setenv("SMTP_HOST", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("SMTP_HOST", "smtp.example.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smtp", cfg.EmailProvider)
}

func TestValidateEmailFrom(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/renodesk")
	t.Setenv("EMAIL_PROVIDER", "ses")
	t.Setenv("EMAIL_FROM", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("EMAIL_FROM", "not-an-address")
	_, err = Load()
	require.Error(t, err)
}
