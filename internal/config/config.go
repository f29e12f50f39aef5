// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"dev"`
	Port        int    `env:"PORT" envDefault:"8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"social-hunt"`

	// Provider registry inputs. Later files override earlier ones by name;
	// code-registered drivers override YAML entries of the same name.
	ProvidersYAML []string `env:"PROVIDERS_YAML" envSeparator:"," envDefault:"providers.yaml"`

	// Scan engine
	MaxConcurrency int           `env:"SCAN_MAX_CONCURRENCY" envDefault:"6"`
	HostRPS        float64       `env:"SCAN_HOST_RPS" envDefault:"2"`
	HostBurst      int           `env:"SCAN_HOST_BURST" envDefault:"4"`
	AcquireTimeout time.Duration `env:"SCAN_ACQUIRE_TIMEOUT" envDefault:"90s"`
	JobDeadline    time.Duration `env:"SCAN_JOB_DEADLINE" envDefault:"180s"`
	RequestTimeout time.Duration `env:"SCAN_REQUEST_TIMEOUT" envDefault:"10s"`

	// Job store retention: LRU capacity plus a TTL after terminal state,
	// whichever evicts first.
	JobCapacity int           `env:"JOB_CAPACITY" envDefault:"256"`
	JobTTL      time.Duration `env:"JOB_TTL" envDefault:"30m"`

	// Addons
	DhashThreshold    int     `env:"SCAN_DHASH_THRESHOLD" envDefault:"10"`
	FaceMatchDistance float64 `env:"SCAN_FACE_MATCH_DISTANCE" envDefault:"0.6"`
	AvatarMaxBytes    int64   `env:"SCAN_AVATAR_MAX_BYTES" envDefault:"4194304"`

	// TorProxyURL routes *.onion hosts through a SOCKS5h proxy. All other
	// hosts go direct. Empty disables onion support entirely.
	TorProxyURL string `env:"TOR_PROXY_URL" envDefault:"socks5h://127.0.0.1:9050"`

	// Optional external face-restoration service (fixed JSON shape).
	FaceRestoreURL     string        `env:"FACE_RESTORE_URL"`
	FaceRestoreTimeout time.Duration `env:"FACE_RESTORE_TIMEOUT" envDefault:"60s"`

	// Bespoke provider credentials
	HIBPAPIKey       string `env:"HIBP_API_KEY"`
	HIBPUserAgent    string `env:"HIBP_USER_AGENT" envDefault:"social-hunt (HIBP)"`
	HIBPAllowHandles bool   `env:"HIBP_ALLOW_NON_EMAIL" envDefault:"false"`

	// HTTP server
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxConcurrency > 64 {
		cfg.MaxConcurrency = 64
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
