// Package server coordinates client registration, presence broadcast,
// message delivery, and connection cleanup via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/directchat/internal/config"
)

// Hub owns the connection registry. Its Run loop is the only place where
// clients are added or removed, so membership changes and the presence
// broadcasts that follow them never interleave.
type Hub struct {
	registry   *Registry
	relay      *Relay
	cfg        config.Config
	log        *slog.Logger
	register   chan *Client
	unregister chan *Client
	deliver    chan Delivery
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to be started with Run. relay may be nil when
// the hub is only used for presence.
func NewHub(cfg config.Config, relay *Relay, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		relay:      relay,
		cfg:        cfg,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan Delivery),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the hub's connection registry for read-only inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register hands a new client to the hub. It returns false once the hub is
// shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister asks the hub to drop a client. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Deliver queues a persisted message for fan-out to its recipient.
func (h *Hub) Deliver(delivery Delivery) {
	select {
	case h.deliver <- delivery:
	case <-h.ctx.Done():
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	return h.registry.send(client, message)
}

// Run starts the hub's main event loop. It should be called in its own
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			if h.removeClient(client) {
				h.log.Info("Client unregistered", "addr", client.addr, "user", client.userID(), "total", h.registry.Len())
				h.publishPresence()
			}

		case delivery := <-h.deliver:
			h.handleDelivery(delivery)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if !h.registry.Add(client) {
		return
	}
	h.log.Info("Client registered", "addr", client.addr, "user", client.userID(), "total", h.registry.Len())

	h.wg.Add(3)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.processPump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.publishPresence()
}

// removeClient deletes the client from the registry, cancels its heartbeat
// and closes its outbound queue. It reports whether the client was present.
func (h *Hub) removeClient(client *Client) bool {
	if !h.registry.Remove(client) {
		return false
	}
	client.heartbeat.stop()
	close(client.send)
	return true
}

// handleDelivery sends a message to every connection of its recipient except
// the one it came from.
func (h *Hub) handleDelivery(delivery Delivery) {
	targets := h.registry.Lookup(delivery.Recipient)

	var failed []*Client
	delivered := 0
	for _, client := range targets {
		if client == delivery.Sender {
			continue
		}
		if !h.safeSend(client, delivery.Payload) {
			failed = append(failed, client)
			continue
		}
		delivered++
	}
	h.log.Debug("Message delivered", "recipient", delivery.Recipient, "connections", delivered)

	if h.removeFailedClients(failed) {
		h.publishPresence()
	}
}

// removeFailedClients drops clients whose outbound queue is full and reports
// whether any of them was still registered.
func (h *Hub) removeFailedClients(clients []*Client) bool {
	removed := false
	for _, client := range clients {
		if h.removeClient(client) {
			h.log.Warn("Client removed due to full send buffer", "addr", client.addr, "user", client.userID())
			removed = true
		}
	}
	return removed
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := h.registry.Snapshot()
	for _, client := range clients {
		client.heartbeat.stop()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to complete,
// or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
