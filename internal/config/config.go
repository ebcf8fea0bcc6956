// Package config loads the runtime settings of the chat server from the
// environment and validates them.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=20" validate:"gt=0"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
}

// HeartbeatConfig controls liveness detection. A ping is sent every
// PingInterval and the connection is dropped when no pong arrives within
// PongTimeout.
type HeartbeatConfig struct {
	PingInterval time.Duration `env:"PING_INTERVAL,default=5s" validate:"gt=0"`
	PongTimeout  time.Duration `env:"PONG_TIMEOUT,default=1s" validate:"gt=0,ltfield=PingInterval"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           int    `env:"PORT,default=4040" validate:"gt=0,lte=65535"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	JWTSecret      string `env:"JWT_SECRET,required=true" validate:"required"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE,default=10485760" validate:"gt=0"`
	SendBufferSize int    `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`

	RateLimit RateLimitConfig
	Heartbeat HeartbeatConfig

	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT,default=10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	StoreDriver string `env:"STORE_DRIVER,default=badger" validate:"oneof=badger sqlite"`
	BadgerPath  string `env:"BADGER_PATH,default=./data/badger" validate:"required_if=StoreDriver badger"`
	SQLitePath  string `env:"SQLITE_PATH,default=./data/messages.db" validate:"required_if=StoreDriver sqlite"`
	UploadDir   string `env:"UPLOAD_DIR,default=./uploads" validate:"required"`
	LogLevel    string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

var validate = validator.New()

// Default returns the settings used when no environment variable overrides
// them. JWTSecret is left empty and must be provided.
func Default() Config {
	return Config{
		Port:           4040,
		AllowedOrigins: "http://localhost:5173",
		MaxMessageSize: 10 << 20,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		Heartbeat: HeartbeatConfig{
			PingInterval: 5 * time.Second,
			PongTimeout:  time.Second,
		},
		WriteTimeout:    10 * time.Second,
		PersistTimeout:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		StoreDriver:     StoreBadger,
		BadgerPath:      "./data/badger",
		SQLitePath:      "./data/messages.db",
		UploadDir:       "./uploads",
		LogLevel:        "INFO",
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins splits AllowedOrigins into its trimmed, non-empty parts.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
