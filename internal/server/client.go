// Package server manages individual WebSocket clients, handling read/write
// pumps, the inbound worker, heartbeats, rate limiting, and lifecycle control
// for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents a WebSocket client connection in the chat system.
// It manages the connection state, outbound queue, liveness, hub reference,
// and the identity bound at handshake (nil for anonymous connections).
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	inbound      chan []byte
	closing      chan struct{}
	hub          *Hub
	id           string
	addr         string
	identity     *auth.Identity
	heartbeat    *heartbeat
	rateLimiter  *rateLimiter
	pingInterval time.Duration
	writeTimeout time.Duration
	log          *slog.Logger
}

// NewClient creates a new Client for the given connection. identity is bound
// once here and never changes afterwards.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, identity *auth.Identity) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		conn:         conn,
		send:         make(chan []byte, cfg.SendBufferSize),
		inbound:      make(chan []byte, cfg.SendBufferSize),
		closing:      make(chan struct{}),
		hub:          hub,
		id:           uuid.NewString(),
		addr:         addr,
		identity:     identity,
		rateLimiter:  newRateLimiter(cfg.RateLimit),
		pingInterval: cfg.Heartbeat.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
	c.log = hub.log.With("conn", c.id, "addr", addr, "user", c.userID())
	c.heartbeat = newHeartbeat(cfg.Heartbeat.PongTimeout, c.terminate)
	return c
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Identity returns the bound identity, or nil for an anonymous connection.
func (c *Client) Identity() *auth.Identity {
	return c.identity
}

func (c *Client) userID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.UserID
}

// terminate runs when the pong deadline expires. The socket is closed
// without a close frame since the peer is presumed gone.
func (c *Client) terminate() {
	c.log.Info("No pong received before deadline; terminating connection")
	c.closeConnection()
	c.hub.Unregister(c)
}

// setupReadConnection wires pong frames into the heartbeat.
func (c *Client) setupReadConnection() {
	c.conn.SetPongHandler(func(string) error {
		c.heartbeat.ponged()
		return nil
	})
}

// logReadError logs the reason the read loop ended.
func (c *Client) logReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("Message exceeded maximum size", "limit", c.hub.cfg.MaxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("Client disconnected", "reason", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("Client connection closed", "reason", err)
		return
	}

	c.log.Warn("WebSocket read error", "error", err)
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding message")
		return false
	}
	return true
}

// processMessage relays a raw frame and queues the result for delivery. It
// returns true if the message was persisted and handed to the hub.
func (c *Client) processMessage(rawMessage []byte) bool {
	if c.hub.relay == nil {
		return false
	}

	outbound, err := c.hub.relay.Handle(c.hub.ctx, c.identity, rawMessage)
	if err != nil {
		c.log.Warn("Inbound message rejected", "error", err)
		c.reportError(err)
		return false
	}

	payload, err := json.Marshal(outbound)
	if err != nil {
		c.log.Error("Error encoding outbound message", "id", outbound.ID, "error", err)
		c.reportError(ErrPersistence)
		return false
	}

	c.hub.Deliver(Delivery{Sender: c, Recipient: outbound.Recipient, Payload: payload})
	return true
}

// reportError queues an error frame for this client. It is dropped if the
// outbound queue is full.
func (c *Client) reportError(err error) {
	payload, encodeErr := json.Marshal(ErrorFrame{Error: errorBody(err)})
	if encodeErr != nil {
		c.log.Error("Error encoding error frame", "error", encodeErr)
		return
	}
	if !c.hub.safeSend(c, payload) {
		c.log.Debug("Error frame dropped", "error", err)
	}
}

// readPump keeps reading so that pong frames are handled while a message is
// being persisted. Accepted frames are queued for processPump.
func (c *Client) readPump() {
	defer func() {
		close(c.closing)
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.reportError(ErrRateLimited)
			continue
		}

		c.enqueue(rawMessage)
	}
}

// enqueue hands a frame to processPump without blocking the read loop. A full
// queue means the sender outpaces persistence, so the frame is refused.
func (c *Client) enqueue(rawMessage []byte) {
	select {
	case c.inbound <- rawMessage:
	default:
		c.log.Warn("Inbound queue full; discarding message", "queued", len(c.inbound))
		c.reportError(ErrRateLimited)
	}
}

// processPump relays queued frames one at a time, in the order they were read.
// Frames still queued when the connection closes are dropped.
func (c *Client) processPump() {
	for {
		select {
		case rawMessage := <-c.inbound:
			c.processMessage(rawMessage)
		case <-c.closing:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.closing:
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the connection
// should be closed. Every queued payload is sent as its own text frame.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message", "error", err)
		}
	}
	return false
}

// handlePing arms the pong deadline and sends a ping frame. The deadline is
// armed first so that a fast pong cannot arrive before it.
func (c *Client) handlePing() bool {
	if !c.heartbeat.pinged() {
		return false
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing ping message", "error", err)
		}
		return false
	}
	return true
}
