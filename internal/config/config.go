package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string   `env:"APP_PORT" env-default:"3000"`
	AppEnv         string   `env:"APP_ENV" env-default:"development"`
	SiteName       string   `env:"SITE_NAME" env-default:"HobbyTrain Wiki"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-default:"http://localhost:5173" env-separator:","`
	LogLevel       string   `env:"LOG_LEVEL" env-default:"info"`
	LogFormat      string   `env:"LOG_FORMAT" env-default:"text"`
	// TrustedProxy takes the client IP from forwarding headers. Enable only
	// behind a proxy that overwrites them.
	TrustedProxy bool `env:"TRUSTED_PROXY" env-default:"false"`
	RateLimit      RateLimit
	Policy         Policy
	SMTP           SMTP
}

// RateLimit configures the per-IP limiter on public auth endpoints.
type RateLimit struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" env-default:"5"`
	Burst int     `env:"RATE_LIMIT_BURST" env-default:"10"`
}

// Policy is the verification-code policy, loaded once at startup.
type Policy struct {
	CodeLength                int           `env:"POLICY_CODE_LENGTH" env-default:"6"`
	CodeTTL                   time.Duration `env:"POLICY_CODE_TTL" env-default:"10m"`
	ResendInterval            time.Duration `env:"POLICY_RESEND_INTERVAL" env-default:"60s"`
	MaxAttempts               int           `env:"POLICY_MAX_ATTEMPTS" env-default:"5"`
	AllowedDomains            []string      `env:"POLICY_ALLOWED_DOMAINS" env-default:"qq.com" env-separator:","`
	EmailMinLength            int           `env:"POLICY_EMAIL_MIN_LENGTH" env-default:"6"`
	EmailMaxLength            int           `env:"POLICY_EMAIL_MAX_LENGTH" env-default:"50"`
	SweepInterval             time.Duration `env:"POLICY_SWEEP_INTERVAL" env-default:"5m"`
	RollbackOnDeliveryFailure bool          `env:"POLICY_ROLLBACK_ON_DELIVERY_FAILURE" env-default:"true"`
}

// SMTP holds the mail gateway settings.
type SMTP struct {
	Host               string        `env:"SMTP_HOST" env-default:"smtp.qq.com"`
	Port               int           `env:"SMTP_PORT" env-default:"465"`
	Username           string        `env:"SMTP_USERNAME"`
	Password           string        `env:"SMTP_PASSWORD"`
	From               string        `env:"SMTP_FROM"`
	FromName           string        `env:"SMTP_FROM_NAME"`
	TLS                bool          `env:"SMTP_TLS" env-default:"true"`
	InsecureSkipVerify bool          `env:"SMTP_INSECURE_SKIP_VERIFY" env-default:"false"`
	Timeout            time.Duration `env:"SMTP_TIMEOUT" env-default:"15s"`
}

// Load reads all configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.Policy.AllowedDomains = normalizeDomains(cfg.Policy.AllowedDomains)
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects policy values the verification core cannot honour.
func (c *Config) Validate() error {
	p := c.Policy
	switch {
	case p.CodeLength < 1 || p.CodeLength > 18:
		return fmt.Errorf("POLICY_CODE_LENGTH must be between 1 and 18, got %d", p.CodeLength)
	case p.CodeTTL < 0:
		return fmt.Errorf("POLICY_CODE_TTL must not be negative")
	case p.ResendInterval < 0:
		return fmt.Errorf("POLICY_RESEND_INTERVAL must not be negative")
	case p.MaxAttempts < 1:
		return fmt.Errorf("POLICY_MAX_ATTEMPTS must be at least 1, got %d", p.MaxAttempts)
	case len(p.AllowedDomains) == 0:
		return fmt.Errorf("POLICY_ALLOWED_DOMAINS must name at least one domain")
	case p.EmailMinLength < 1 || p.EmailMinLength > p.EmailMaxLength:
		return fmt.Errorf("invalid email length bounds [%d, %d]", p.EmailMinLength, p.EmailMaxLength)
	case p.SweepInterval <= 0:
		return fmt.Errorf("POLICY_SWEEP_INTERVAL must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}
	return nil
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
