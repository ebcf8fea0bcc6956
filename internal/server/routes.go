// Package server wires HTTP handlers into a gorilla/mux router.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures the application routes. Websocket upgrades are
// accepted on /ws and, for clients that connect to the bare host, on /.
func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.WebSocketHandler)
	r.HandleFunc("/", s.WebSocketHandler).HeadersRegexp("Upgrade", "(?i)websocket")
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet, http.MethodHead)
	return r
}
