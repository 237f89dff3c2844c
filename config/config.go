// Package config loads runtime configuration from an optional YAML file,
// an optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrInvalidPort      = errors.New("port must be a number between 1 and 65535")
	ErrMissingSecret    = errors.New("jwt secret key is required")
	ErrInvalidCron      = errors.New("invalid presence reconcile cron expression")
	ErrInvalidRateLimit = errors.New("websocket rate limit must be positive")
)

// Config holds the service configuration.
type Config struct {
	Port               string        `yaml:"port"`
	DatabaseURL        string        `yaml:"database_url"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	JWTSecretKey       string        `yaml:"jwt_secret_key"`
	JWTIssuer          string        `yaml:"jwt_issuer"`
	AccessCookie       string        `yaml:"access_cookie"`
	RefreshCookie      string        `yaml:"refresh_cookie"`
	CORSAllowedOrigins string        `yaml:"cors_allowed_origins"`
	EventsPerSecond    float64       `yaml:"ws_events_per_second"`
	EventBurst         int           `yaml:"ws_event_burst"`
	ReconcileCron      string        `yaml:"presence_reconcile_cron"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the default configuration.
// In production, the secret key must be overridden through JWT_SECRET_KEY.
func Default() Config {
	return Config{
		Port:               "3000",
		DatabaseURL:        "realtime.db",
		RedisAddr:          "localhost:6379",
		JWTSecretKey:       "your-secret-key-change-in-production",
		JWTIssuer:          "unitedwerise",
		AccessCookie:       "access_token",
		RefreshCookie:      "refresh_token",
		CORSAllowedOrigins: "http://localhost:3000,http://localhost:8080",
		EventsPerSecond:    10,
		EventBurst:         20,
		ReconcileCron:      "*/5 * * * *",
		ShutdownTimeout:    30 * time.Second,
	}
}

// Load builds the configuration. A missing .env file is not an error; a
// missing file named by CONFIG_FILE is.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.JWTSecretKey, "JWT_SECRET_KEY")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.AccessCookie, "ACCESS_COOKIE")
	setString(&cfg.RefreshCookie, "REFRESH_COOKIE")
	setString(&cfg.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&cfg.ReconcileCron, "PRESENCE_RECONCILE_CRON")

	if v := os.Getenv("WS_EVENTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WS_EVENTS_PER_SECOND: %w", err)
		}
		cfg.EventsPerSecond = f
	}
	if v := os.Getenv("WS_EVENT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WS_EVENT_BURST: %w", err)
		}
		cfg.EventBurst = n
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return ErrMissingSecret
	}
	if c.EventsPerSecond <= 0 || c.EventBurst <= 0 {
		return ErrInvalidRateLimit
	}
	if c.ReconcileCron != "" && !gronx.IsValid(c.ReconcileCron) {
		return fmt.Errorf("%w: %s", ErrInvalidCron, c.ReconcileCron)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}
