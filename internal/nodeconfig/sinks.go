package nodeconfig

import (
	"sync"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/util"
)

// InMemoryAddressBook is the default AddressBook: it remembers the most
// recent Addresses announcement per peer and answers queries with its own
// configured advertised addresses. It does not attempt to reconcile
// conflicting announcements or expire stale ones — a real address book (a
// DHT, a directory service) is explicitly out of scope.
type InMemoryAddressBook struct {
	mu        sync.RWMutex
	known     map[identity.PeerId][]string
	advertise []string
}

// NewInMemoryAddressBook creates an AddressBook that reports advertise as
// this node's own known addresses.
func NewInMemoryAddressBook(advertise []string) *InMemoryAddressBook {
	return &InMemoryAddressBook{
		known:     make(map[identity.PeerId][]string),
		advertise: advertise,
	}
}

// Observe implements dispatch.AddressBook.
func (b *InMemoryAddressBook) Observe(origin identity.PeerId, addresses []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.known[origin] = addresses
	util.LogDebug("nodeconfig: observed %d address(es) from %s", len(addresses), origin)
}

// Known implements dispatch.AddressBook.
func (b *InMemoryAddressBook) Known() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.advertise...)
}

// InMemoryNeighborBook is the default NeighborBook: it logs RoutingTable
// announcements but does not build a second-hop topology — gossiping
// beyond direct neighbors is explicitly out of scope (no DHT/gossip layer).
type InMemoryNeighborBook struct {
	mu   sync.Mutex
	seen map[identity.PeerId][]identity.PeerId
}

// NewInMemoryNeighborBook creates an empty NeighborBook.
func NewInMemoryNeighborBook() *InMemoryNeighborBook {
	return &InMemoryNeighborBook{seen: make(map[identity.PeerId][]identity.PeerId)}
}

// Observe implements dispatch.NeighborBook.
func (b *InMemoryNeighborBook) Observe(origin identity.PeerId, peers []identity.PeerId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen[origin] = peers
	util.LogDebug("nodeconfig: observed %d neighbor(s) from %s", len(peers), origin)
}

// LoggingAppDataSink is the default AppDataSink: it logs delivered payloads
// rather than interpreting them, since application-level dispatch beyond
// an injectable sink is out of scope.
type LoggingAppDataSink struct{}

// Deliver implements dispatch.AppDataSink.
func (LoggingAppDataSink) Deliver(origin identity.PeerId, content string) {
	util.LogInfo("nodeconfig: app_data from %s (%d bytes)", origin, len(content))
}
