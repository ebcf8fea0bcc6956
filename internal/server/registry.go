package server

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/samber/lo"
)

// Registry is the set of active connections. Only the hub goroutine mutates
// it; any goroutine may read from it.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Add inserts the client and reports whether it was absent.
func (r *Registry) Add(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client]; ok {
		return false
	}
	r.clients[client] = struct{}{}
	return true
}

// Remove deletes the client and reports whether it was present. Removing an
// absent client is a no-op.
func (r *Registry) Remove(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client]; !ok {
		return false
	}
	delete(r.clients, client)
	return true
}

func (r *Registry) Contains(client *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[client]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Snapshot returns a point-in-time copy of all registered clients.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Lookup returns every registered client bound to userID. Anonymous clients
// are never returned.
func (r *Registry) Lookup(userID string) []*Client {
	if userID == "" {
		return nil
	}
	return lo.Filter(r.Snapshot(), func(client *Client, _ int) bool {
		return client.identity != nil && client.identity.UserID == userID
	})
}

// Roster lists the identities bound to at least one registered client, each
// exactly once, ordered by username then user id.
func (r *Registry) Roster() []auth.Identity {
	identities := lo.FilterMap(r.Snapshot(), func(client *Client, _ int) (auth.Identity, bool) {
		if client.identity == nil {
			return auth.Identity{}, false
		}
		return *client.identity, true
	})
	roster := lo.UniqBy(identities, func(identity auth.Identity) string {
		return identity.UserID
	})
	slices.SortFunc(roster, func(a, b auth.Identity) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.UserID, b.UserID))
	})
	return roster
}

// send queues payload on a registered client's outbound buffer without
// blocking. The read lock keeps Remove, and the channel close that follows
// it, from racing the send.
func (r *Registry) send(client *Client, payload []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.clients[client]; !ok {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}
