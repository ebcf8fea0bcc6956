package server

import (
	"log/slog"
	"time"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/Tyrowin/directchat/internal/config"
	"github.com/mama165/sdk-go/logs"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.JWTSecret = "test_secret_for_directchat_tokens"
	cfg.AllowedOrigins = "*"
	cfg.SendBufferSize = 8
	cfg.Heartbeat = config.HeartbeatConfig{
		PingInterval: 50 * time.Millisecond,
		PongTimeout:  30 * time.Millisecond,
	}
	cfg.WriteTimeout = time.Second
	cfg.PersistTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newTestHub(cfg config.Config) *Hub {
	return NewHub(cfg, nil, testLogger())
}

// newDetachedClient builds a client without a socket. Its pumps must never
// be started.
func newDetachedClient(hub *Hub, identity *auth.Identity) *Client {
	return NewClient(nil, hub, "127.0.0.1:0", identity)
}

func identity(userID, username string) *auth.Identity {
	return &auth.Identity{UserID: userID, Username: username}
}

// drain returns every payload currently queued for client.
func drain(client *Client) [][]byte {
	var payloads [][]byte
	for {
		select {
		case payload, ok := <-client.send:
			if !ok {
				return payloads
			}
			payloads = append(payloads, payload)
		default:
			return payloads
		}
	}
}
