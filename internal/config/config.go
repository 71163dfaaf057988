// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the ambient configuration parsed from environment variables.
// The judge data itself (problems, languages, bind address) comes from the
// config file supplied on the command line; env values override the file
// only where noted.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	// BindAddress/Port override the config file's server section when set.
	BindAddress string `env:"BIND_ADDRESS"`
	Port        int    `env:"PORT"`
	// DBPath is the sqlite file backing the task/users/contests tables.
	DBPath string `env:"DB_PATH" envDefault:"file.db"`
	// SandboxDir is where per-job temp{id} working directories are created.
	SandboxDir      string `env:"SANDBOX_DIR" envDefault:"."`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"oj-server"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	// RateLimitPerMin applies go-chi/httprate to mutating routes; zero
	// disables it so graders can submit at full speed.
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"0"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Judge worker pool sizing.
	WorkerMinCount        int           `env:"WORKER_MIN_COUNT" envDefault:"2"`
	WorkerMaxCount        int           `env:"WORKER_MAX_COUNT" envDefault:"8"`
	QueueCapacity         int           `env:"QUEUE_CAPACITY" envDefault:"256"`
	WorkerScalingInterval time.Duration `env:"WORKER_SCALING_INTERVAL" envDefault:"2s"`
	WorkerIdleTimeout     time.Duration `env:"WORKER_IDLE_TIMEOUT" envDefault:"30s"`

	// Optional Redis-backed submit throttle; inactive unless RedisAddr and
	// SubmitBurst are both set.
	RedisAddr    string        `env:"REDIS_ADDR"`
	SubmitBurst  int           `env:"SUBMIT_BURST" envDefault:"0"`
	SubmitWindow time.Duration `env:"SUBMIT_WINDOW" envDefault:"1m"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.WorkerMinCount < 1 {
		cfg.WorkerMinCount = 1
	}
	if cfg.WorkerMaxCount < cfg.WorkerMinCount {
		cfg.WorkerMaxCount = cfg.WorkerMinCount
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	return cfg, nil
}

// SubmitThrottleEnabled reports whether the Redis submit throttle is active.
func (c Config) SubmitThrottleEnabled() bool {
	return c.RedisAddr != "" && c.SubmitBurst > 0
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
