package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	Tickets      TicketConfig       `yaml:"tickets"`
	Notification NotificationConfig `yaml:"notification"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
}

// TicketConfig holds engine rules.
type TicketConfig struct {
	ResolutionCooldown time.Duration `yaml:"resolution_cooldown"`
	MaxSubjectLength   int           `yaml:"max_subject_length"`
	MaxBodyLength      int           `yaml:"max_body_length"`
	SupportQueueID     string        `yaml:"support_queue_id"`
}

// NotificationConfig controls the dispatch queue and delivery sink.
type NotificationConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	StreamKey      string        `yaml:"stream_key"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	DeliverTimeout time.Duration `yaml:"deliver_timeout"`
}

// RateLimitConfig bounds mutating requests per actor.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Name:                  "inquiry-service",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			Enabled: true,
			Addr:    "127.0.0.1:6379",
		},
		Logger: LoggerConfig{Level: "info"},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
		},
		Tickets: TicketConfig{
			ResolutionCooldown: 24 * time.Hour,
			MaxSubjectLength:   200,
			MaxBodyLength:      10000,
			SupportQueueID:     "support",
		},
		Notification: NotificationConfig{
			StreamKey:      "inquiry:notifications",
			Workers:        4,
			QueueSize:      1024,
			MaxAttempts:    5,
			RetryBackoff:   500 * time.Millisecond,
			IdempotencyTTL: 72 * time.Hour,
			DeliverTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	base := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &base); err != nil {
			return nil, err
		}
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(base.Redis.DB)))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cooldown, err := getEnvAsDuration("TICKET_RESOLUTION_COOLDOWN", base.Tickets.ResolutionCooldown)
	if err != nil {
		return nil, err
	}
	if cooldown < 0 {
		return nil, fmt.Errorf("invalid TICKET_RESOLUTION_COOLDOWN: must not be negative")
	}
	backoff, err := getEnvAsDuration("NOTIFY_RETRY_BACKOFF", base.Notification.RetryBackoff)
	if err != nil {
		return nil, err
	}
	idemTTL, err := getEnvAsDuration("NOTIFY_IDEMPOTENCY_TTL", base.Notification.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	deliverTimeout, err := getEnvAsDuration("NOTIFY_DELIVER_TIMEOUT", base.Notification.DeliverTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", base.App.Name),
			Env:                   getEnv("APP_ENV", base.App.Env),
			Host:                  getEnv("APP_HOST", base.App.Host),
			Port:                  getEnv("APP_PORT", base.App.Port),
			Version:               getEnv("APP_VERSION", base.App.Version),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", base.App.RequestTimeoutSeconds),
		},
		Postgres: PostgresConfig{
			DSN:            getEnv("POSTGRES_DSN", base.Postgres.DSN),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(base.Postgres.MaxConns))),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(base.Postgres.MinConns))),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", base.Postgres.RunMigrations),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(base.Postgres.ConnMaxIdleSec))),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(base.Postgres.ConnMaxLifeSec))),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", base.Redis.Enabled),
			Addr:     getEnv("REDIS_ADDR", base.Redis.Addr),
			Password: getEnv("REDIS_PASSWORD", base.Redis.Password),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", base.Logger.Level),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", base.Auth.JWTSecret),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", base.Auth.AccessTokenTTLMinutes),
		},
		Tickets: TicketConfig{
			ResolutionCooldown: cooldown,
			MaxSubjectLength:   getEnvAsInt("TICKET_MAX_SUBJECT_LENGTH", base.Tickets.MaxSubjectLength),
			MaxBodyLength:      getEnvAsInt("TICKET_MAX_BODY_LENGTH", base.Tickets.MaxBodyLength),
			SupportQueueID:     getEnv("TICKET_SUPPORT_QUEUE_ID", base.Tickets.SupportQueueID),
		},
		Notification: NotificationConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", base.Notification.WebhookURL),
			StreamKey:      getEnv("NOTIFY_STREAM_KEY", base.Notification.StreamKey),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", base.Notification.Workers),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", base.Notification.QueueSize),
			MaxAttempts:    getEnvAsInt("NOTIFY_MAX_ATTEMPTS", base.Notification.MaxAttempts),
			RetryBackoff:   backoff,
			IdempotencyTTL: idemTTL,
			DeliverTimeout: deliverTimeout,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", base.RateLimit.RequestsPerSecond),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", base.RateLimit.Burst),
		},
	}

	return cfg, nil
}

func loadFile(path string, into *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, into); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
