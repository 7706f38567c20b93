package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := defaults()
	cfg.WhatsApp.Token = "tok"
	cfg.WhatsApp.PhoneNumberID = "12345"
	cfg.LLM.APIKey = "llm-key"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaults()
	assert.Equal(t, "CO", cfg.Pricing.FixedOriginCountry)
	assert.Equal(t, "US", cfg.Pricing.FixedDestCountry)
	assert.Equal(t, 5.0, cfg.Pricing.PerKgUSD)
	assert.Equal(t, 8.0, cfg.Pricing.PerAddressUSD)
	assert.Equal(t, 70.0, cfg.Pricing.FixedMaxWeightKg)
	assert.Equal(t, 4200.0, cfg.Pricing.ConversionRate)
	assert.Equal(t, 15, cfg.Profile.RecheckMinutes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WHATSAPP_TOKEN", "env-token")
	t.Setenv("PRICING_CONVERSION_RATE", "4350.5")
	t.Setenv("CRM_SPREADSHEET_ID", "99")

	cfg := defaults()
	applyEnv(&cfg)

	assert.Equal(t, "env-token", cfg.WhatsApp.Token)
	assert.Equal(t, 4350.5, cfg.Pricing.ConversionRate)
	assert.Equal(t, 99, cfg.CRM.SpreadsheetID)
}

func TestValidateRequiredFields(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	missing := validConfig()
	missing.WhatsApp.Token = ""
	assert.Error(t, missing.Validate())

	missing = validConfig()
	missing.LLM.APIKey = ""
	assert.Error(t, missing.Validate())
}

func TestValidateClampsAndNormalizes(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp.SendRetries = 0
	cfg.Profile.RecheckMinutes = -1
	cfg.Pricing.FixedOriginCountry = "co"
	cfg.Carrier.APIKey = "rate-key"
	cfg.Carrier.SecretKey = "rate-secret"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.WhatsApp.SendRetries)
	assert.Equal(t, 15, cfg.Profile.RecheckMinutes)
	assert.Equal(t, "CO", cfg.Pricing.FixedOriginCountry)
	assert.Equal(t, "rate-key", cfg.Carrier.TrackAPIKey, "track creds default to rating creds")
}

func TestValidateRejectsZeroConversionRate(t *testing.T) {
	cfg := validConfig()
	cfg.Pricing.ConversionRate = 0
	assert.Error(t, cfg.Validate())
}

func TestRateStale(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	p := PricingConfig{RateMaxAgeDays: 30}
	assert.False(t, p.RateStale(now), "no load date means nothing to flag")

	p.RateLoadedAt = "2026-08-15"
	assert.False(t, p.RateStale(now))

	p.RateLoadedAt = "2026-06-01"
	assert.True(t, p.RateStale(now))

	p.RateMaxAgeDays = 0
	assert.False(t, p.RateStale(now), "staleness tracking disabled")
}
