// Package message implements the overlay network's tagged-union wire
// schema: Message is either Routable (handled locally, may be replied to
// directly) or UnRoutable (source-routed or direct application data).
package message

import (
	"encoding/json"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/pion/webrtc/v4"
)

// Message is the outer union. Exactly one of Routable/UnRoutable is set.
// The wire form is untagged: Decode tries Routable first (its "type" values
// never collide with UnRoutable's), falling back to UnRoutable.
type Message interface {
	isMessage()
}

// RoutableMessage is a message that a peer handles locally and may answer
// with a directly-addressed reply. The wire "type" field is the
// snake_case discriminator.
type RoutableMessage interface {
	Message
	isRoutable()
	routableType() string
}

// UnRoutableMessage carries content that is only meaningful along a
// specific source route, or sent directly between connected peers.
type UnRoutableMessage interface {
	Message
	isUnRoutable()
	unRoutableType() string
}

// ---------------------------------------------------------------------------
// Routable variants
// ---------------------------------------------------------------------------

// Connect carries WebRTC signaling material: an SDP offer/answer and/or a
// single trickled ICE candidate. Either field may be nil.
type Connect struct {
	Sdp *webrtc.SessionDescription `json:"sdp,omitempty"`
	Ice *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}

func (*Connect) isMessage()              {}
func (*Connect) isRoutable()             {}
func (*Connect) routableType() string    { return "connect" }

// Addresses announces the transport addresses a peer is reachable at.
// Delivery to application logic is left to an AddressBook sink — the
// dispatcher does not interpret the strings itself.
type Addresses struct {
	Addresses []string `json:"addresses"`
}

func (*Addresses) isMessage()           {}
func (*Addresses) isRoutable()          {}
func (*Addresses) routableType() string { return "addresses" }

// RoutingTable announces a peer's known neighbors.
type RoutingTable struct {
	Peers []identity.PeerId `json:"peers"`
}

func (*RoutingTable) isMessage()           {}
func (*RoutingTable) isRoutable()          {}
func (*RoutingTable) routableType() string { return "routing_table" }

// Error reports a failure back to a sender. Data carries arbitrary
// supplementary fields flattened into the same JSON object as msg, the way
// the original schema flattens an extra HashMap onto the variant.
type Error struct {
	Msg  string
	Data map[string]string
}

func (*Error) isMessage()           {}
func (*Error) isRoutable()          {}
func (*Error) routableType() string { return "error" }

// Query asks a peer to report its known addresses and/or routing table.
// Present in later revisions of the source schema; supplemented here per
// SPEC_FULL.md §4.
type Query struct {
	Addresses    bool `json:"addresses"`
	RoutingTable bool `json:"routing_table"`
}

func (*Query) isMessage()           {}
func (*Query) isRoutable()          {}
func (*Query) routableType() string { return "query" }

// UnknownMessage is the fallback a RoutableMessage decodes to when the
// "type" discriminator isn't recognized. Forwarding code can still source-
// route an UnknownMessage without understanding its content.
type UnknownMessage struct {
	Type string
	Raw  json.RawMessage
}

func (*UnknownMessage) isMessage()  {}
func (*UnknownMessage) isRoutable() {}
func (m *UnknownMessage) routableType() string { return m.Type }

// ---------------------------------------------------------------------------
// UnRoutable variants
// ---------------------------------------------------------------------------

// SourceRoute carries content addressed along an explicit peer path rather
// than directly. See internal/dispatch for the forwarding algorithm:
//
// The idea behind source routing is that instead of the network deciding
// the path for packets to travel, it's the sender who decides the path
// packets should travel. With one exception: when a peer receives a
// SourceRoute and it is not the last peer in Path, it searches Path from
// the end for the first peer it has in its routing table and forwards the
// message there unmodified. If it reaches its own peer id without finding
// one, it replies along the reverse of the path with an "undeliverable"
// Error.
type SourceRoute struct {
	Path    []identity.PeerId `json:"path"`
	Content RoutableMessage   `json:"content"`
}

func (*SourceRoute) isMessage()              {}
func (*SourceRoute) isUnRoutable()           {}
func (*SourceRoute) unRoutableType() string  { return "source_route" }

// AppData is opaque application payload sent directly between two peers
// that already share a connection (WS or DataChannel). Delivery beyond the
// dispatcher is left to an AppDataSink, per SPEC_FULL.md §4 Supplemented
// features.
type AppData struct {
	Content string `json:"content"`
}

func (*AppData) isMessage()             {}
func (*AppData) isUnRoutable()          {}
func (*AppData) unRoutableType() string { return "app_data" }
