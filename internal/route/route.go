// Package route implements the Route abstraction: a single outbound path
// to a peer, over either a WebSocket connection or a WebRTC DataChannel.
// Route is a two-variant tagged union, not an interface with two
// implementations — callers switch on Kind when the transport matters
// (e.g. logging) and call Send for everything else.
package route

import (
	"errors"
	"fmt"

	"github.com/evan-brass/hyperspace/internal/envelope"
)

// Kind distinguishes the two transports a Route can wrap.
type Kind int

const (
	// WS is a Route backed by an inbound WebSocket connection.
	WS Kind = iota
	// DC is a Route backed by a WebRTC DataChannel.
	DC
)

func (k Kind) String() string {
	switch k {
	case WS:
		return "ws"
	case DC:
		return "dc"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Send once the underlying transport has shut
// down.
var ErrClosed = errors.New("route: transport closed")

// Sender is the minimal send contract both transports satisfy. WS sending
// goes through an unbounded producer outbox (internal/wsconn); DC sending
// goes straight to the DataChannel since pion already buffers internally.
type Sender interface {
	SendFull(f *envelope.Full) error
	Closed() bool
}

// Route is an outbound path to one peer.
type Route struct {
	Kind   Kind
	sender Sender
}

// NewWS wraps a WebSocket-backed Sender as a Route.
func NewWS(s Sender) Route {
	return Route{Kind: WS, sender: s}
}

// NewDC wraps a DataChannel-backed Sender as a Route.
func NewDC(s Sender) Route {
	return Route{Kind: DC, sender: s}
}

// Send transmits a signed envelope along this route.
func (r Route) Send(f *envelope.Full) error {
	if r.sender == nil || r.sender.Closed() {
		return ErrClosed
	}
	if err := r.sender.SendFull(f); err != nil {
		return fmt.Errorf("route: %s send failed: %w", r.Kind, err)
	}
	return nil
}

// Closed reports whether the underlying transport has shut down.
func (r Route) Closed() bool {
	return r.sender == nil || r.sender.Closed()
}

// Sender exposes the underlying Sender, e.g. so a routing table can tell
// whether a route it holds for a peer is still the one a closing transport
// installed, rather than one that has since replaced it.
func (r Route) Sender() Sender {
	return r.sender
}
