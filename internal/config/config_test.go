package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BILLING_DATABASE_DSN", "postgres://billing@localhost/billing")
	t.Setenv("BILLING_STRIPE_APIKEY", "sk_test_123")
	t.Setenv("BILLING_STRIPE_WEBHOOKSECRET", "whsec_123")
	t.Setenv("BILLING_AUTH_JWTSECRET", "jwt")
	t.Setenv("BILLING_APP_BASEURL", "https://shop.example/")
	t.Setenv("BILLING_KAFKA_PAYMENTTOPIC", "billing.payments")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "sqlx", cfg.Database.Driver)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 5*time.Minute, cfg.Stripe.WebhookTolerance)
	assert.Equal(t, "billing.payments", cfg.Kafka.PaymentTopic)
	assert.Equal(t, "sk_test_123", cfg.Stripe.APIKey)

	assert.Equal(t, "https://shop.example/payment/success?session_id={CHECKOUT_SESSION_ID}", cfg.SuccessURL())
	assert.Equal(t, "https://shop.example/payment/cancel", cfg.CancelURL())
	assert.Equal(t, "https://shop.example/profile", cfg.PortalReturnURL())
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"database.dsn", "database.driver", "stripe.apiKey", "stripe.webhookSecret", "auth.jwtSecret", "app.baseURL"} {
		assert.Contains(t, err.Error(), want)
	}
}
