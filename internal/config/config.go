// Package config loads process configuration from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	// Port the HTTP gateway listens on.
	Port string `env:"PORT" envDefault:"8080"`

	// RedisURL enables the Redis command transport when set; otherwise
	// gateway and sequencer talk over an in-process channel.
	RedisURL string `env:"REDIS_URL"`

	// QueueKey is the Redis list carrying command envelopes.
	QueueKey string `env:"QUEUE_KEY" envDefault:"engine_queue"`

	// DatabaseURL enables the PostgreSQL fill journal when set.
	DatabaseURL string `env:"DATABASE_URL"`

	// AwaitTimeout bounds how long the gateway waits for an engine
	// response before reporting a gateway timeout.
	AwaitTimeout time.Duration `env:"ENGINE_TIMEOUT" envDefault:"5s"`

	// QueueDepth is the in-process command channel buffer.
	QueueDepth int `env:"QUEUE_DEPTH" envDefault:"1024"`

	// JournalDepth is the fill journal channel buffer.
	JournalDepth int `env:"JOURNAL_DEPTH" envDefault:"1024"`
}

// Load reads the configuration from the environment. A missing .env file
// is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
