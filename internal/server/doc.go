// Package server implements the websocket core of directchat.
//
// A Hub owns the connection Registry and serializes every membership change
// through its Run loop. Each Client runs a read pump that hands inbound frames
// to the Relay and a write pump that drains its outbound queue and drives the
// heartbeat. Presence is republished to all connections after every change.
package server
