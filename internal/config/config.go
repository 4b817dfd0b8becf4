package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ストアバックエンドの種別
const (
	StoreDriverPostgres  = "postgres"
	StoreDriverMongo     = "mongo"
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver       string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL       string `env:"DATABASE_URL"`
	MongoURI          string `env:"MONGO_URI"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"clkk"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`

	// Identity
	FirebaseAPIKey   string `env:"FIREBASE_API_KEY,required,notEmpty"`
	IdentityEndpoint string `env:"IDENTITY_ENDPOINT"`

	// Session
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"86400"`

	// Verification
	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	OperationTimeout    time.Duration `env:"OPERATION_TIMEOUT" envDefault:"15s"`
	ViewIdleTimeout     time.Duration `env:"VIEW_IDLE_TIMEOUT" envDefault:"2m"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	ProfileMarkVerified bool          `env:"PROFILE_MARK_VERIFIED" envDefault:"false"`

	// Rate Limit（リクエスト/分）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitResend  int `env:"RATE_LIMIT_RESEND" envDefault:"3"`

	// Analytics
	PostHogAPIKey   string `env:"POSTHOG_API_KEY"`
	PostHogEndpoint string `env:"POSTHOG_ENDPOINT" envDefault:"https://us.i.posthog.com"`

	// Mail
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	// カンマ区切りで複数指定できる
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

// MigrationConfig はmigrateサブコマンドの設定。
type MigrationConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	return &cfg, nil
}

// LoadMigration はmigrateサブコマンド用の設定を読み込む。
func LoadMigration() (*MigrationConfig, error) {
	cfg, err := env.ParseAs[MigrationConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return &cfg, nil
}

// MailEnabled はSMTPの設定があるかどうかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// validate はストアバックエンドごとの必須項目を検証する。
func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreDriverFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.MailEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}
