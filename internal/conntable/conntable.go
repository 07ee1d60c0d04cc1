// Package conntable maintains the peer id → in-progress/established
// PeerConnection table. Generalized from the same Dispatcher idea as
// internal/routetable, but keyed on the connection object itself rather
// than a send-only Route, since Connect/ICE exchange needs the full
// rtcpeer.Peer.
package conntable

import (
	"sync"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/rtcpeer"
)

// Table is a concurrency-safe PeerId → *rtcpeer.Peer map.
type Table struct {
	mu    sync.Mutex
	peers map[identity.PeerId]*rtcpeer.Peer
}

// New creates an empty Table.
func New() *Table {
	return &Table{peers: make(map[identity.PeerId]*rtcpeer.Peer)}
}

// Get looks up the connection for a peer.
func (t *Table) Get(id identity.PeerId) (*rtcpeer.Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	return p, ok
}

// GetOrCreate returns the existing connection for id, or calls create and
// stores its result. The table's lock is held across the check-and-create
// so that create_connection is never re-entrant for the same origin, per
// SPEC_FULL.md §5 — safe here because rtcpeer.New only performs local,
// synchronous PeerConnection/DataChannel setup, never network I/O.
func (t *Table) GetOrCreate(id identity.PeerId, create func() (*rtcpeer.Peer, error)) (*rtcpeer.Peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[id]; ok {
		return p, nil
	}

	p, err := create()
	if err != nil {
		return nil, err
	}
	t.peers[id] = p
	return p, nil
}

// Delete removes a peer's connection, e.g. once it closes.
func (t *Table) Delete(id identity.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}
