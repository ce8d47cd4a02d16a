package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Attachment store drivers.
const (
	DriverGridFS = "gridfs"
	DriverS3     = "s3"
	DriverGCS    = "gcs"
	DriverMemory = "memory"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=24h"`
	SentryDSN string        `env:"SENTRY_DSN"`

	Mongo       MongoConfig
	Redis       RedisConfig
	Attachments AttachmentsConfig
	SMTP        SMTPConfig
	Notify      NotifyConfig
	Reconcile   ReconcileConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=mobistudy"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR, default=localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,   default=0"`
	LockTTL  time.Duration `env:"LOCK_TTL,   default=10s"`
	LockWait time.Duration `env:"LOCK_WAIT,  default=5s"`
}

type AttachmentsConfig struct {
	Driver string `env:"ATTACHMENTS_DRIVER, default=gridfs"`
	Bucket string `env:"ATTACHMENTS_BUCKET, default=attachments"`

	S3Region          string `env:"ATTACHMENTS_S3_REGION, default=eu-north-1"`
	S3Endpoint        string `env:"ATTACHMENTS_S3_ENDPOINT"`
	S3PathStyle       bool   `env:"ATTACHMENTS_S3_PATH_STYLE, default=false"`
	S3AccessKeyID     string `env:"ATTACHMENTS_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"ATTACHMENTS_S3_SECRET_ACCESS_KEY"`

	GCSCredentialsFile string `env:"ATTACHMENTS_GCS_CREDENTIALS_FILE"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT,     default=587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM,     default=noreply@mobistudy.org"`
}

type NotifyConfig struct {
	Workers int     `env:"NOTIFY_WORKERS, default=4"`
	Rate    float64 `env:"NOTIFY_RATE,    default=5"`
}

type ReconcileConfig struct {
	Interval time.Duration `env:"RECONCILE_INTERVAL, default=5m"`
	Grace    time.Duration `env:"RECONCILE_GRACE,    default=15m"`
}

// Development reports whether the service runs with development defaults.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" && !c.Development() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	switch c.Attachments.Driver {
	case DriverGridFS, DriverS3, DriverGCS, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown ATTACHMENTS_DRIVER %q", c.Attachments.Driver))
	}
	if c.Attachments.Driver == DriverMemory && !c.Development() {
		errs = append(errs, errors.New("the memory attachment driver is only allowed in development"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Redis.LockTTL <= 0 || c.Redis.LockWait <= 0 {
		errs = append(errs, errors.New("LOCK_TTL and LOCK_WAIT must be positive"))
	}
	if c.Reconcile.Interval <= 0 || c.Reconcile.Grace <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL and RECONCILE_GRACE must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if cfg.Development() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
