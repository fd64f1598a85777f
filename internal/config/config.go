package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/livraison-express/api-server-go/internal/model"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	AppName     string `env:"APP_NAME" envDefault:"livraison-express"`

	// Comma-separated browser origins allowed to call the API. Empty means
	// allow any origin, which is only acceptable in development.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// QR session TTLs, per session type. The observed flows use different
	// lifetimes: short for mobile-initiated handoffs, longer for web logins.
	QRLoginTTLSeconds       int `env:"QR_LOGIN_TTL_SECONDS" envDefault:"300"`
	QRMobileToWebTTLSeconds int `env:"QR_MOBILE_TO_WEB_TTL_SECONDS" envDefault:"120"`
	QRWebLoginTTLSeconds    int `env:"QR_WEB_LOGIN_TTL_SECONDS" envDefault:"600"`

	CleanupIntervalSeconds     int `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"300"`
	CleanupStartupDelaySeconds int `env:"CLEANUP_STARTUP_DELAY_SECONDS" envDefault:"10"`

	VerificationCodeTTLSeconds int `env:"VERIFICATION_CODE_TTL_SECONDS" envDefault:"600"`

	// Outbound email (EmailJS-style HTTP API). Leaving EMAIL_API_URL empty
	// disables the notifier; OTP codes are then returned in responses.
	EmailAPIURL     string `env:"EMAIL_API_URL"`
	EmailServiceID  string `env:"EMAIL_SERVICE_ID"`
	EmailTemplateID string `env:"EMAIL_TEMPLATE_ID"`
	EmailPublicKey  string `env:"EMAIL_PUBLIC_KEY"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SessionTTL returns the configured TTL for a session type.
func (c *Config) SessionTTL(t model.SessionType) time.Duration {
	switch t {
	case model.SessionTypeMobileToWeb:
		return time.Duration(c.QRMobileToWebTTLSeconds) * time.Second
	case model.SessionTypeWebLogin:
		return time.Duration(c.QRWebLoginTTLSeconds) * time.Second
	default:
		return time.Duration(c.QRLoginTTLSeconds) * time.Second
	}
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func (c *Config) CleanupStartupDelay() time.Duration {
	return time.Duration(c.CleanupStartupDelaySeconds) * time.Second
}

func (c *Config) VerificationCodeTTL() time.Duration {
	return time.Duration(c.VerificationCodeTTLSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.QRLoginTTLSeconds <= 0 || c.QRMobileToWebTTLSeconds <= 0 || c.QRWebLoginTTLSeconds <= 0 {
		return fmt.Errorf("QR session TTLs must be positive")
	}
	if c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_SECONDS must be positive")
	}
	if c.VerificationCodeTTLSeconds <= 0 {
		return fmt.Errorf("VERIFICATION_CODE_TTL_SECONDS must be positive")
	}
	if c.IsProduction() && c.EmailAPIURL == "" {
		log.Warn().Msg("EMAIL_API_URL is empty in production: verification codes will be returned in responses")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
