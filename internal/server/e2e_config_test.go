package server_test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// e2eConfig tunes the websocket suite. Heartbeat timings are kept short so
// that liveness scenarios finish quickly.
type e2eConfig struct {
	// E2E_COLOURS enables colorized step headers
	Colours      bool          `envconfig:"E2E_COLOURS" default:"true"`
	JWTSecret    string        `envconfig:"E2E_JWT_SECRET" default:"e2e_secret_for_directchat_tokens"`
	PingInterval time.Duration `envconfig:"E2E_PING_INTERVAL" default:"100ms"`
	PongTimeout  time.Duration `envconfig:"E2E_PONG_TIMEOUT" default:"50ms"`
	// E2E_WAIT bounds every wait for an expected frame
	Wait time.Duration `envconfig:"E2E_WAIT" default:"3s"`
}

func loadE2EConfig() (e2eConfig, error) {
	var cfg e2eConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}
