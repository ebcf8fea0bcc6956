// Package server exposes HTTP handlers for websocket upgrades and health
// checks.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/gorilla/websocket"
)

const closeReasonInvalidToken = "invalid token"

// WebSocketHandler upgrades the request, binds the caller's identity from the
// token cookie and hands the connection to the hub. A request without a token
// is accepted as anonymous. A token that fails verification gets its
// connection closed with a policy violation; nothing else is affected.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, authErr := s.bindIdentity(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	if authErr != nil {
		s.log.Warn("Rejecting connection with invalid token", "addr", r.RemoteAddr, "error", authErr)
		s.rejectConnection(conn, websocket.ClosePolicyViolation, closeReasonInvalidToken)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, identity)
	if !s.hub.Register(client) {
		s.rejectConnection(conn, websocket.CloseGoingAway, "server shutting down")
	}
}

// bindIdentity returns the identity carried by the request's token cookie, or
// nil if there is none.
func (s *Server) bindIdentity(r *http.Request) (*auth.Identity, error) {
	token, ok := auth.TokenFromRequest(r)
	if !ok {
		return nil, nil
	}
	if s.verifier == nil {
		return nil, errors.New("no token verifier configured")
	}
	identity, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Server) rejectConnection(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("Error writing close frame", "error", err)
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("Error closing rejected connection", "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "directchat server is running")
}
