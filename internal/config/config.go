package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the shipdesk WhatsApp concierge.
type Config struct {
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Webhook  WebhookConfig  `toml:"webhook"`
	LLM      LLMConfig      `toml:"llm"`
	Carrier  CarrierConfig  `toml:"carrier"`
	Pricing  PricingConfig  `toml:"pricing"`
	CRM      CRMConfig      `toml:"crm"`
	Profile  ProfileConfig  `toml:"profile"`
	Gateway  GatewayConfig  `toml:"gateway"`
	State    StateConfig    `toml:"state"`
}

type WhatsAppConfig struct {
	Token         string `toml:"token"`
	PhoneNumberID string `toml:"phone_number_id"`
	APIBaseURL    string `toml:"api_base_url"`
	SendRetries   int    `toml:"send_retries"`
}

type WebhookConfig struct {
	Addr        string `toml:"addr"`
	VerifyToken string `toml:"verify_token"`
	Secret      string `toml:"secret"`
}

type LLMConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
	// TimeoutSeconds bounds a single interpret or transcribe call.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type CarrierConfig struct {
	APIKey         string `toml:"api_key"`
	SecretKey      string `toml:"secret_key"`
	TrackAPIKey    string `toml:"track_api_key"`
	TrackSecretKey string `toml:"track_secret_key"`
	AccountNumber  string `toml:"account_number"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PricingConfig drives the fixed-rate lane and currency normalization.
type PricingConfig struct {
	FixedOriginCountry string  `toml:"fixed_origin_country"`
	FixedDestCountry   string  `toml:"fixed_dest_country"`
	FixedMaxWeightKg   float64 `toml:"fixed_max_weight_kg"`
	PerKgUSD           float64 `toml:"per_kg_usd"`
	PerAddressUSD      float64 `toml:"per_address_usd"`

	LocalCurrency  string  `toml:"local_currency"`
	ConversionRate float64 `toml:"conversion_rate"`
	// RateLoadedAt is when the conversion rate was last updated
	// (YYYY-MM-DD or RFC 3339). Quotes computed past RateMaxAgeDays are flagged.
	RateLoadedAt   string `toml:"rate_loaded_at"`
	RateMaxAgeDays int    `toml:"rate_max_age_days"`
}

type CRMConfig struct {
	URL            string `toml:"url"`
	Database       string `toml:"database"`
	Username       string `toml:"username"`
	APIKey         string `toml:"api_key"`
	HelpdeskTeamID int    `toml:"helpdesk_team_id"`
	SalesTeamID    int    `toml:"sales_team_id"`
	SpreadsheetID  int    `toml:"spreadsheet_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ProfileConfig struct {
	// RecheckMinutes bounds how stale a cached profile may be before the
	// directory is consulted again.
	RecheckMinutes int `toml:"recheck_minutes"`
	HistoryLimit   int `toml:"history_limit"`
}

type GatewayConfig struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

type StateConfig struct {
	Dir string `toml:"dir"`
}

func defaults() Config {
	home := os.Getenv("HOME")
	return Config{
		WhatsApp: WhatsAppConfig{
			APIBaseURL:  "https://graph.facebook.com/v18.0",
			SendRetries: 3,
		},
		Webhook: WebhookConfig{
			Addr: ":8080",
		},
		LLM: LLMConfig{
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 30,
		},
		Carrier: CarrierConfig{
			BaseURL:        "https://apis.fedex.com",
			TimeoutSeconds: 30,
		},
		Pricing: PricingConfig{
			FixedOriginCountry: "CO",
			FixedDestCountry:   "US",
			FixedMaxWeightKg:   70,
			PerKgUSD:           5.0,
			PerAddressUSD:      8.0,
			LocalCurrency:      "COP",
			ConversionRate:     4200,
			RateMaxAgeDays:     30,
		},
		CRM: CRMConfig{
			HelpdeskTeamID: 1,
			SalesTeamID:    7,
			SpreadsheetID:  114,
			TimeoutSeconds: 20,
		},
		Profile: ProfileConfig{
			RecheckMinutes: 15,
			HistoryLimit:   10,
		},
		State: StateConfig{
			Dir: filepath.Join(home, ".config", "shipdesk"),
		},
	}
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides. Env vars always win.
//
// Config file resolution: SHIPDESK_CONFIG env var → ~/.config/shipdesk/config.toml → skip.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("SHIPDESK_CONFIG"); p != "" {
		return expandHome(p)
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "shipdesk", "config.toml")
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(dst *float64, key string) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr(&cfg.WhatsApp.Token, "WHATSAPP_TOKEN")
	setStr(&cfg.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setStr(&cfg.WhatsApp.APIBaseURL, "WHATSAPP_API_URL")

	setStr(&cfg.Webhook.Addr, "SHIPDESK_WEBHOOK_ADDR")
	setStr(&cfg.Webhook.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setStr(&cfg.Webhook.Secret, "WHATSAPP_APP_SECRET")

	setStr(&cfg.LLM.APIKey, "LLM_API_KEY")
	setStr(&cfg.LLM.Model, "LLM_MODEL")

	setStr(&cfg.Carrier.APIKey, "CARRIER_API_KEY")
	setStr(&cfg.Carrier.SecretKey, "CARRIER_SECRET_KEY")
	setStr(&cfg.Carrier.TrackAPIKey, "CARRIER_TRACK_API_KEY")
	setStr(&cfg.Carrier.TrackSecretKey, "CARRIER_TRACK_SECRET_KEY")
	setStr(&cfg.Carrier.AccountNumber, "CARRIER_ACCOUNT")
	setStr(&cfg.Carrier.BaseURL, "CARRIER_BASE_URL")

	setStr(&cfg.Pricing.FixedOriginCountry, "PRICING_FIXED_ORIGIN")
	setFloat(&cfg.Pricing.PerKgUSD, "PRICING_PER_KG_USD")
	setFloat(&cfg.Pricing.PerAddressUSD, "PRICING_PER_ADDRESS_USD")
	setFloat(&cfg.Pricing.ConversionRate, "PRICING_CONVERSION_RATE")
	setStr(&cfg.Pricing.RateLoadedAt, "PRICING_RATE_LOADED_AT")

	setStr(&cfg.CRM.URL, "CRM_URL")
	setStr(&cfg.CRM.Database, "CRM_DB")
	setStr(&cfg.CRM.Username, "CRM_USER")
	setStr(&cfg.CRM.APIKey, "CRM_API_KEY")
	setInt(&cfg.CRM.HelpdeskTeamID, "CRM_HELPDESK_TEAM_ID")
	setInt(&cfg.CRM.SalesTeamID, "CRM_SALES_TEAM_ID")
	setInt(&cfg.CRM.SpreadsheetID, "CRM_SPREADSHEET_ID")

	setInt(&cfg.Profile.RecheckMinutes, "PROFILE_RECHECK_MINUTES")

	setStr(&cfg.Gateway.Addr, "SHIPDESK_GATEWAY_ADDR")
	setStr(&cfg.Gateway.Token, "SHIPDESK_GATEWAY_TOKEN")

	setStr(&cfg.State.Dir, "SHIPDESK_STATE_DIR")
}

// Validate checks required fields and clamps out-of-range values.
func (c *Config) Validate() error {
	if c.WhatsApp.Token == "" {
		return fmt.Errorf("whatsapp token is required (WHATSAPP_TOKEN)")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp phone number id is required (WHATSAPP_PHONE_NUMBER_ID)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required (LLM_API_KEY)")
	}

	if c.WhatsApp.SendRetries < 1 {
		c.WhatsApp.SendRetries = 3
	}
	if c.Profile.RecheckMinutes < 1 {
		c.Profile.RecheckMinutes = 15
	}
	if c.Profile.HistoryLimit < 1 {
		c.Profile.HistoryLimit = 10
	}
	if c.Pricing.ConversionRate <= 0 {
		return fmt.Errorf("pricing conversion_rate must be positive, got %v", c.Pricing.ConversionRate)
	}
	if c.Pricing.FixedMaxWeightKg <= 0 {
		c.Pricing.FixedMaxWeightKg = 70
	}
	c.Pricing.FixedOriginCountry = strings.ToUpper(c.Pricing.FixedOriginCountry)
	c.Pricing.FixedDestCountry = strings.ToUpper(c.Pricing.FixedDestCountry)

	// Track credentials default to the rating credentials, matching how the
	// carrier portal issues them.
	if c.Carrier.TrackAPIKey == "" {
		c.Carrier.TrackAPIKey = c.Carrier.APIKey
	}
	if c.Carrier.TrackSecretKey == "" {
		c.Carrier.TrackSecretKey = c.Carrier.SecretKey
	}

	return nil
}

// RateAge reports how old the configured conversion rate is. The second
// return is false when no load date is configured or it cannot be parsed.
func (c *PricingConfig) RateAge(now time.Time) (time.Duration, bool) {
	if c.RateLoadedAt == "" {
		return 0, false
	}
	t, err := time.Parse("2006-01-02", c.RateLoadedAt)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, c.RateLoadedAt); err != nil {
			return 0, false
		}
	}
	return now.Sub(t), true
}

// RateStale reports whether the conversion rate is older than the configured
// maximum age. Without a load date there is nothing to measure against, so
// the rate is not flagged.
func (c *PricingConfig) RateStale(now time.Time) bool {
	if c.RateMaxAgeDays <= 0 {
		return false
	}
	age, ok := c.RateAge(now)
	if !ok {
		return false
	}
	return age > time.Duration(c.RateMaxAgeDays)*24*time.Hour
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
