// Package routetable maintains the peer id → Route table the dispatcher
// consults to forward messages. Generalized from the teacher's
// socketID → inbox-channel Dispatcher (internal/tunnel/dispatcher.go) to a
// PeerId → Route mapping.
package routetable

import (
	"sync"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/route"
)

// Table is a concurrency-safe PeerId → Route map. The mutex is held only
// across map operations, never across network I/O or channel sends.
type Table struct {
	mu     sync.RWMutex
	routes map[identity.PeerId]route.Route
}

// New creates an empty Table.
func New() *Table {
	return &Table{routes: make(map[identity.PeerId]route.Route)}
}

// Set installs or replaces the route to a peer. If a route already exists
// for this peer, the new one wins (last-writer-wins across transports, per
// SPEC_FULL.md §9's Open Question decision).
func (t *Table) Set(id identity.PeerId, r route.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[id] = r
}

// Get looks up the route to a peer.
func (t *Table) Get(id identity.PeerId) (route.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[id]
	return r, ok
}

// Delete removes a peer's route, e.g. once its transport closes.
func (t *Table) Delete(id identity.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, id)
}

// DeleteIfSender removes a peer's route only if it is still the one
// backed by sender — guarding against a closing transport clobbering a
// newer route that has since replaced it for the same peer.
func (t *Table) DeleteIfSender(id identity.PeerId, sender route.Sender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.routes[id]; ok && cur.Sender() == sender {
		delete(t.routes, id)
	}
}

// Peers returns a snapshot of all known peer ids, for RoutingTable replies.
func (t *Table) Peers() []identity.PeerId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	peers := make([]identity.PeerId, 0, len(t.routes))
	for id := range t.routes {
		peers = append(peers, id)
	}
	return peers
}
