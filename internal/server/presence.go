package server

import (
	"encoding/json"

	"github.com/Tyrowin/directchat/internal/auth"
)

// presencePayload encodes the roster as an "online" frame. An empty roster
// is sent as an empty list, never as null.
func presencePayload(roster []auth.Identity) ([]byte, error) {
	if roster == nil {
		roster = []auth.Identity{}
	}
	return json.Marshal(PresenceFrame{Online: roster})
}

// publishPresence sends the full roster to every registered client. Clients
// that cannot accept it are dropped, which changes the roster again, so the
// publish repeats until every remaining client received the latest roster.
func (h *Hub) publishPresence() {
	for {
		roster := h.registry.Roster()
		payload, err := presencePayload(roster)
		if err != nil {
			h.log.Error("Failed to encode presence", "error", err)
			return
		}

		clients := h.registry.Snapshot()
		var failed []*Client
		for _, client := range clients {
			if !h.safeSend(client, payload) {
				failed = append(failed, client)
			}
		}
		h.log.Debug("Presence published", "online", len(roster), "connections", len(clients))

		if !h.removeFailedClients(failed) {
			return
		}
	}
}
