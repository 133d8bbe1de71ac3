package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	TokenTTL         time.Duration `mapstructure:"TOKEN_TTL"`
	ResetTokenSecret string        `mapstructure:"RESET_TOKEN_SECRET"`
	ResetTokenTTL    time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	PublicBaseURL    string        `mapstructure:"PUBLIC_BASE_URL"`
	DevUserID        string        `mapstructure:"DEV_USER_ID"`
	DevUserRole      string        `mapstructure:"DEV_USER_ROLE"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	UploadDir        string        `mapstructure:"UPLOAD_DIR"`
	MaxUploadMB      int64         `mapstructure:"MAX_UPLOAD_MB"`
	SMTPHost         string        `mapstructure:"SMTP_HOST"`
	SMTPPort         int           `mapstructure:"SMTP_PORT"`
	SMTPUsername     string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword     string        `mapstructure:"SMTP_PASSWORD"`
	MailFrom         string        `mapstructure:"MAIL_FROM"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled       bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile      string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile       string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL",
	"RESET_TOKEN_SECRET", "RESET_TOKEN_TTL", "PUBLIC_BASE_URL",
	"DEV_USER_ID", "DEV_USER_ROLE", "CORS_ORIGINS", "UPLOAD_DIR", "MAX_UPLOAD_MB",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads an optional .env file and the environment. Environment variables
// win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("JWT_ISSUER", "mdhs-ehr")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("DEV_USER_ROLE", "doctor")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "noreply@mdhs.local")
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = nil
	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DevActorID returns the user impersonated by unauthenticated requests in
// development, if configured.
func (c *Config) DevActorID() (uuid.UUID, bool) {
	if !c.IsDev() || c.DevUserID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.DevUserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Validate refuses configurations that are unsafe outside development.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if len(c.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes when ENV=%q", c.Env)
		}
		if c.ResetTokenSecret != "" && len(c.ResetTokenSecret) < 32 {
			return fmt.Errorf("RESET_TOKEN_SECRET must be at least 32 bytes when set")
		}
		if c.DevUserID != "" {
			return fmt.Errorf("DEV_USER_ID is only allowed when ENV=development")
		}
	}
	if c.DevUserID != "" {
		if _, err := uuid.Parse(c.DevUserID); err != nil {
			return fmt.Errorf("DEV_USER_ID is not a valid UUID: %w", err)
		}
	}
	if c.DevUserRole != "doctor" && c.DevUserRole != "admin" {
		return fmt.Errorf("DEV_USER_ROLE must be \"doctor\" or \"admin\", got %q", c.DevUserRole)
	}
	if c.TokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL and RESET_TOKEN_TTL must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

// SigningKey returns the access token key. Development falls back to a fixed
// key so the server starts without configuration.
func (c *Config) SigningKey() []byte {
	if c.JWTSigningKey == "" && c.IsDev() {
		return []byte("development-only-signing-key-change-me")
	}
	return []byte(c.JWTSigningKey)
}

// ResetKey returns the password reset token key, derived from the signing key
// when RESET_TOKEN_SECRET is unset.
func (c *Config) ResetKey() []byte {
	if c.ResetTokenSecret != "" {
		return []byte(c.ResetTokenSecret)
	}
	return append([]byte("password-reset:"), c.SigningKey()...)
}
