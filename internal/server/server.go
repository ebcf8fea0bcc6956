// Package server implements the HTTP and websocket server for directchat.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/Tyrowin/directchat/internal/config"
	"github.com/gorilla/websocket"
)

// Server bundles the hub with everything the websocket handshake needs.
type Server struct {
	cfg      config.Config
	hub      *Hub
	verifier auth.Verifier
	origins  *originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
	log      *slog.Logger
}

// New builds a Server. The hub is not running until StartHub is called.
func New(cfg config.Config, verifier auth.Verifier, relay *Relay, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      NewHub(cfg, relay, log),
		verifier: verifier,
		origins:  newOriginPolicy(cfg.Origins(), log),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.http = CreateServer(cfg.Addr(), SetupRoutes(s))
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// StartHub runs the hub loop in its own goroutine.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// ListenAndServe blocks until the HTTP server stops. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	return StartServer(s.http, s.log)
}

// Shutdown stops accepting connections, then tears down the hub and every
// client within cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := ShutdownServer(ctx, s.http, s.log)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)
	if httpErr != nil {
		return httpErr
	}
	return hubErr
}
