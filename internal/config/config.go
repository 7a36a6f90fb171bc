package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env      string         `env:"ENV" envDefault:"prod"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	AMQP     AMQPConfig     `envPrefix:"AMQP_"`
	API      APIConfig      `envPrefix:"API_"`
	WhatsApp WhatsAppConfig `envPrefix:"WHATSAPP_"`
	Dispatch DispatchConfig `envPrefix:"DISPATCH_"`
}

// LogConfig controls the slog handler built in main
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          int    `env:"PORT" envDefault:"5432"`
	User          string `env:"USER" envDefault:"dispatcher"`
	Password      string `env:"PASSWORD" envDefault:"dispatcher"`
	DBName        string `env:"NAME" envDefault:"dispatcher"`
	SSLMode       string `env:"SSLMODE" envDefault:"disable"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig holds Redis configuration. An empty URL disables both the
// progress channel and the distributed run lease.
type RedisConfig struct {
	URL      string        `env:"URL"`
	LeaseKey string        `env:"LEASE_KEY" envDefault:"dispatcher:active-campaign"`
	LeaseTTL time.Duration `env:"LEASE_TTL" envDefault:"15m"`
}

// AMQPConfig configures the optional progress fan-out exchange
type AMQPConfig struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"dispatcher.progress"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Port int `env:"PORT" envDefault:"8080"`
}

// WhatsAppConfig selects and configures the message transport
type WhatsAppConfig struct {
	// Mode is "whatsmeow" for a real linked device or "mock" for local runs.
	Mode            string  `env:"MODE" envDefault:"whatsmeow"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"INFO"`
	MockSuccessRate float64 `env:"MOCK_SUCCESS_RATE" envDefault:"0.92"`
}

// DispatchConfig holds the anti-ban pacing and circuit breaker limits
type DispatchConfig struct {
	IntervalMin           time.Duration `env:"INTERVAL_MIN" envDefault:"5s"`
	IntervalMax           time.Duration `env:"INTERVAL_MAX" envDefault:"13s"`
	HourlyCap             int           `env:"HOURLY_CAP" envDefault:"30"`
	PauseMessageThreshold int           `env:"PAUSE_MESSAGE_THRESHOLD" envDefault:"0"`
	PauseDuration         time.Duration `env:"PAUSE_DURATION" envDefault:"10m"`
	RestDuration          time.Duration `env:"REST_DURATION" envDefault:"5m"`
	MaxErrorRate          float64       `env:"MAX_ERROR_RATE" envDefault:"50"`
	MinErrorSamples       int           `env:"MIN_ERROR_SAMPLES" envDefault:"20"`
	FailureCooldown       time.Duration `env:"FAILURE_COOLDOWN" envDefault:"2s"`
	CriticalCooldown      time.Duration `env:"CRITICAL_COOLDOWN" envDefault:"3s"`
	SendTimeout           time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	MaxAttempts           int           `env:"MAX_ATTEMPTS" envDefault:"3"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the dispatcher cannot run with
func (c *Config) Validate() error {
	d := c.Dispatch
	switch {
	case d.IntervalMin < 0:
		return errors.New("DISPATCH_INTERVAL_MIN must be >= 0")
	case d.IntervalMax < d.IntervalMin:
		return errors.New("DISPATCH_INTERVAL_MAX must be >= DISPATCH_INTERVAL_MIN")
	case d.HourlyCap <= 0:
		return errors.New("DISPATCH_HOURLY_CAP must be > 0")
	case d.PauseMessageThreshold < 0:
		return errors.New("DISPATCH_PAUSE_MESSAGE_THRESHOLD must be >= 0")
	case d.MaxErrorRate <= 0 || d.MaxErrorRate > 100:
		return errors.New("DISPATCH_MAX_ERROR_RATE must be in (0, 100]")
	case d.MinErrorSamples < 1:
		return errors.New("DISPATCH_MIN_ERROR_SAMPLES must be >= 1")
	case d.MaxAttempts < 0:
		return errors.New("DISPATCH_MAX_ATTEMPTS must be >= 0")
	case d.SendTimeout <= 0:
		return errors.New("DISPATCH_SEND_TIMEOUT must be > 0")
	}

	switch c.WhatsApp.Mode {
	case "whatsmeow", "mock":
	default:
		return fmt.Errorf("unknown WHATSAPP_MODE %q (must be 'whatsmeow' or 'mock')", c.WhatsApp.Mode)
	}

	return nil
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// SlogLevel converts the textual level into a slog.Level
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
