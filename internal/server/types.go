// Package server defines the frames exchanged over the websocket and utility
// helpers that are reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/directchat/internal/auth"
)

// InboundMessage is the frame a client sends to talk to another user.
type InboundMessage struct {
	Recipient string       `json:"recipient" validate:"required"`
	Text      string       `json:"text" validate:"required_without=File"`
	File      *FilePayload `json:"file" validate:"omitempty"`
}

// FilePayload is an attachment sent inline as a data URL.
type FilePayload struct {
	Name string `json:"name" validate:"required"`
	Data string `json:"data" validate:"required"`
}

// OutboundMessage is delivered to the recipient's connections once the
// message has been persisted.
type OutboundMessage struct {
	Text      *string `json:"text"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	File      *string `json:"file"`
	ID        string  `json:"_id"`
}

// PresenceFrame lists every identity that currently has a live connection.
type PresenceFrame struct {
	Online []auth.Identity `json:"online"`
}

// ErrorFrame reports a rejected inbound frame back to its sender.
type ErrorFrame struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Delivery is a persisted message waiting to be fanned out by the hub. The
// sending connection is excluded from delivery.
type Delivery struct {
	Sender    *Client
	Recipient string
	Payload   []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
