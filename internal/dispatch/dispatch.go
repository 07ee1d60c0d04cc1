// Package dispatch implements the central message dispatcher: the single
// goroutine that decodes, verifies, and routes every inbound envelope,
// whether it arrived over a WebSocket or a WebRTC DataChannel.
//
// Generalized from the teacher's internal/tunnel/dispatcher.go +
// internal/tunnel/handler.go (a single routing table keyed by connection
// identity, one goroutine per inbound stream feeding a shared structure)
// from a uint32 socketID key to a PeerId key, and from raw tunnel packets
// to signed, tagged-union envelopes.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/evan-brass/hyperspace/internal/conntable"
	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
	"github.com/evan-brass/hyperspace/internal/metrics"
	"github.com/evan-brass/hyperspace/internal/route"
	"github.com/evan-brass/hyperspace/internal/routetable"
	"github.com/evan-brass/hyperspace/internal/rtcpeer"
	"github.com/evan-brass/hyperspace/internal/util"
	"github.com/pion/webrtc/v4"
)

// InboxBufferSize is the central inbox's capacity. A small, fixed bound
// gives the dispatcher real backpressure: once it's full, every reader
// pump across every connection blocks handing off its next envelope,
// rather than the dispatcher silently falling behind an unbounded queue.
const InboxBufferSize = 10

// ErrNoRoute is returned when no reachable hop can be found for a
// source-routed message, mirroring route.ErrClosed but distinct since it
// signals a routing-table miss rather than a dead transport.
var ErrNoRoute = errors.New("dispatch: no reachable hop")

// AddressBook receives Addresses announcements and answers address
// queries. SPEC_FULL.md leaves delivery of Addresses content external —
// this is the minimal sink contract the dispatcher needs to have
// something concrete to call.
type AddressBook interface {
	Observe(origin identity.PeerId, addresses []string)
	Known() []string
}

// NeighborBook receives RoutingTable announcements. Same rationale as
// AddressBook.
type NeighborBook interface {
	Observe(origin identity.PeerId, peers []identity.PeerId)
}

// AppDataSink receives direct AppData payloads. Delivery beyond the
// dispatcher is a TODO in the original schema; this interface closes that
// gap with a pluggable sink instead of guessing at application semantics.
type AppDataSink interface {
	Deliver(origin identity.PeerId, content string)
}

// replyFunc answers a routable message, either directly (the sender has a
// live route) or along a reconstructed source-route path (the sender was
// only reachable through intermediate hops).
type replyFunc func(msg message.Message) error

// Dispatcher is the relay peer's core: it owns the identity, the routing
// and connection tables, and the sinks for content it doesn't interpret.
type Dispatcher struct {
	self identity.PeerId

	id          *identity.Identity
	stunServers []string

	routes *routetable.Table
	conns  *conntable.Table

	addresses AddressBook
	neighbors NeighborBook
	appData   AppDataSink

	inbox chan inboundFrame

	ctx context.Context
}

// inboundFrame pairs a received envelope with the route it arrived on, so
// the dispatcher goroutine can register that route under the envelope's
// origin only once the origin has been verified — never before.
type inboundFrame struct {
	full  *envelope.Full
	route route.Route
}

// Config bundles the sinks and STUN server list a Dispatcher needs.
type Config struct {
	STUNServers []string
	Addresses   AddressBook
	Neighbors   NeighborBook
	AppData     AppDataSink
}

// New creates a Dispatcher bound to id's identity.
func New(ctx context.Context, id *identity.Identity, cfg Config) *Dispatcher {
	return &Dispatcher{
		self:        id.PeerId(),
		id:          id,
		stunServers: cfg.STUNServers,
		routes:      routetable.New(),
		conns:       conntable.New(),
		addresses:   cfg.Addresses,
		neighbors:   cfg.Neighbors,
		appData:     cfg.AppData,
		inbox:       make(chan inboundFrame, InboxBufferSize),
		ctx:         ctx,
	}
}

// Routes exposes the routing table, e.g. for a Query reply or for tests
// that need to pre-populate a route. Dispatcher itself is the only writer
// that registers routes from live traffic, and only after verifying an
// envelope's origin (see handle).
func (d *Dispatcher) Routes() *routetable.Table { return d.routes }

// Self returns the dispatcher's own PeerId.
func (d *Dispatcher) Self() identity.PeerId { return d.self }

// Greeting seals the signed Addresses announcement that every accepted
// connection must send as its first outbound frame, per SPEC_FULL.md
// §4.5/§6.
func (d *Dispatcher) Greeting() (*envelope.Full, error) {
	var addrs []string
	if d.addresses != nil {
		addrs = d.addresses.Known()
	}
	full, err := envelope.Seal(d.id, &message.Addresses{Addresses: addrs})
	if err != nil {
		return nil, fmt.Errorf("dispatch: sealing greeting: %w", err)
	}
	return full, nil
}

// Submit hands a freshly-received envelope to the dispatcher, along with
// the route it arrived on. It blocks once the inbox is full — the
// intended backpressure signal back to whichever connection's pump called
// it. r is registered under the envelope's origin only after that origin
// has been verified (see handle) — never from the claimed, unverified
// Full.Origin.
func (d *Dispatcher) Submit(full *envelope.Full, r route.Route) {
	select {
	case d.inbox <- inboundFrame{full: full, route: r}:
	case <-d.ctx.Done():
	}
}

// Run drains the inbox until ctx is cancelled. Exactly one goroutine
// should call Run.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case in := <-d.inbox:
			d.handle(in.full, in.route)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(full *envelope.Full, r route.Route) {
	verified, err := full.Verify()
	if err != nil {
		metrics.MessagesDispatched.WithLabelValues("unknown", "dropped").Inc()
		util.LogWarning("dispatch: rejecting envelope: %v", err)
		return
	}

	// Only now — after the signature on verified.Origin has checked out —
	// is it safe to believe the connection that delivered this frame
	// really does belong to that peer.
	if r.Sender() != nil {
		d.routes.Set(verified.Origin, r)
	}

	switch m := verified.Message.(type) {
	case *message.SourceRoute:
		d.forwardSourceRoute(full, verified.Origin, m)
	case message.UnRoutableMessage:
		d.handleUnRoutable(verified.Origin, m)
	case message.RoutableMessage:
		d.handleRoutable(verified.Origin, m, d.directReply(verified.Origin))
	}
}

// ---------------------------------------------------------------------------
// Source routing
// ---------------------------------------------------------------------------

// forwardSourceRoute implements the tail-to-head scan described on
// message.SourceRoute: if we are the last hop in Path, the content is ours
// to handle; otherwise we relay the original, unmodified envelope to the
// first reachable hop scanning from the end, or reply with an
// undeliverable Error if none is reachable.
func (d *Dispatcher) forwardSourceRoute(full *envelope.Full, receivedFrom identity.PeerId, sr *message.SourceRoute) {
	path := sr.Path
	if len(path) == 0 {
		util.LogWarning("dispatch: source_route with empty path from %s", receivedFrom)
		return
	}

	if path[len(path)-1] == d.self {
		reply := d.pathReply(path, receivedFrom)
		d.handleRoutable(receivedFrom, sr.Content, reply)
		return
	}

	idx, ok := d.findHop(path)
	if !ok {
		metrics.SourceRouteForwards.WithLabelValues("replied_undeliverable").Inc()
		d.replyRoutingFailed(path, receivedFrom)
		return
	}

	rt, _ := d.routes.Get(path[idx])
	if err := rt.Send(full); err != nil {
		metrics.SourceRouteForwards.WithLabelValues("replied_undeliverable").Inc()
		d.routes.Delete(path[idx])
		d.replyRoutingFailed(path, receivedFrom)
		return
	}
	metrics.SourceRouteForwards.WithLabelValues("forwarded").Inc()
}

// findHop scans path from the end toward the start for the first peer with
// a live route. Encountering our own PeerId before finding one stops the
// scan early — per the source-route doc comment, that's a dead end, not a
// peer to forward through.
func (d *Dispatcher) findHop(path []identity.PeerId) (int, bool) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == d.self {
			return -1, false
		}
		if _, ok := d.routes.Get(path[i]); ok {
			return i, true
		}
	}
	return -1, false
}

// sendAlongPath seals content as a new SourceRoute envelope and forwards it
// to the first reachable hop in path, transmitting only the path suffix
// from that hop onward — not the whole path, and not a prefix.
func (d *Dispatcher) sendAlongPath(path []identity.PeerId, content message.RoutableMessage) error {
	idx, ok := d.findHop(path)
	if !ok {
		return ErrNoRoute
	}

	suffix := append([]identity.PeerId(nil), path[idx:]...)
	sr := &message.SourceRoute{Path: suffix, Content: content}

	full, err := envelope.Seal(d.id, sr)
	if err != nil {
		return fmt.Errorf("dispatch: sealing source_route reply: %w", err)
	}

	rt, _ := d.routes.Get(path[idx])
	return rt.Send(full)
}

// pathReply builds the replyFunc used when we were the final hop of a
// SourceRoute: the reply path is the reverse of the path we received, with
// the peer who handed it to us appended at the end.
func (d *Dispatcher) pathReply(receivedPath []identity.PeerId, receivedFrom identity.PeerId) replyFunc {
	return func(msg message.Message) error {
		routable, ok := msg.(message.RoutableMessage)
		if !ok {
			return errors.New("dispatch: reply message must be routable")
		}
		replyPath := reversed(receivedPath)
		replyPath = append(replyPath, receivedFrom)
		return d.sendAlongPath(replyPath, routable)
	}
}

func (d *Dispatcher) replyRoutingFailed(receivedPath []identity.PeerId, receivedFrom identity.PeerId) {
	replyPath := reversed(receivedPath)
	replyPath = append(replyPath, receivedFrom)
	if err := d.sendAlongPath(replyPath, &message.Error{Msg: "Routing failed"}); err != nil {
		util.LogDebug("dispatch: could not deliver routing-failed reply: %v", err)
	}
}

func reversed(path []identity.PeerId) []identity.PeerId {
	out := make([]identity.PeerId, len(path))
	for i, id := range path {
		out[len(path)-1-i] = id
	}
	return out
}

// directReply builds the replyFunc used when the sender has a live,
// directly-addressed route (they are a WS client or a connected DC peer).
func (d *Dispatcher) directReply(origin identity.PeerId) replyFunc {
	return func(msg message.Message) error {
		rt, ok := d.routes.Get(origin)
		if !ok {
			return route.ErrClosed
		}
		full, err := envelope.Seal(d.id, msg)
		if err != nil {
			return fmt.Errorf("dispatch: sealing direct reply: %w", err)
		}
		return rt.Send(full)
	}
}

// ---------------------------------------------------------------------------
// Routable message handling
// ---------------------------------------------------------------------------

func (d *Dispatcher) handleUnRoutable(origin identity.PeerId, msg message.UnRoutableMessage) {
	switch m := msg.(type) {
	case *message.AppData:
		metrics.MessagesDispatched.WithLabelValues("app_data", "ok").Inc()
		if d.appData != nil {
			d.appData.Deliver(origin, m.Content)
		}
	default:
		util.LogDebug("dispatch: ignoring unroutable message from %s", origin)
	}
}

func (d *Dispatcher) handleRoutable(origin identity.PeerId, msg message.RoutableMessage, reply replyFunc) {
	switch m := msg.(type) {
	case *message.Connect:
		d.handleConnect(origin, m, reply)
	case *message.Addresses:
		metrics.MessagesDispatched.WithLabelValues("addresses", "ok").Inc()
		if d.addresses != nil {
			d.addresses.Observe(origin, m.Addresses)
		}
	case *message.RoutingTable:
		metrics.MessagesDispatched.WithLabelValues("routing_table", "ok").Inc()
		if d.neighbors != nil {
			d.neighbors.Observe(origin, m.Peers)
		}
	case *message.Query:
		d.handleQuery(origin, m, reply)
	case *message.Error:
		metrics.MessagesDispatched.WithLabelValues("error", "ok").Inc()
		util.LogWarning("dispatch: peer %s reported error: %s", origin, m.Msg)
	case *message.UnknownMessage:
		metrics.MessagesDispatched.WithLabelValues("unknown", "dropped").Inc()
		util.LogDebug("dispatch: ignoring unrecognized message type %q from %s", m.Type, origin)
	}
}

func (d *Dispatcher) handleQuery(origin identity.PeerId, q *message.Query, reply replyFunc) {
	metrics.MessagesDispatched.WithLabelValues("query", "ok").Inc()
	if q.Addresses && d.addresses != nil {
		if err := reply(&message.Addresses{Addresses: d.addresses.Known()}); err != nil {
			util.LogDebug("dispatch: query addresses reply failed for %s: %v", origin, err)
		}
	}
	if q.RoutingTable {
		if err := reply(&message.RoutingTable{Peers: d.routes.Peers()}); err != nil {
			util.LogDebug("dispatch: query routing_table reply failed for %s: %v", origin, err)
		}
	}
}

// handleConnect mediates WebRTC signaling for origin: it creates (or
// reuses) origin's PeerConnection and feeds it the offered SDP/ICE
// material, answering via reply.
func (d *Dispatcher) handleConnect(origin identity.PeerId, c *message.Connect, reply replyFunc) {
	metrics.MessagesDispatched.WithLabelValues("connect", "ok").Inc()

	peer, err := d.conns.GetOrCreate(origin, func() (*rtcpeer.Peer, error) {
		p, err := rtcpeer.New(d.ctx, d.stunServers)
		if err != nil {
			return nil, err
		}
		p.Pump(func(full *envelope.Full) { d.Submit(full, route.NewDC(p)) })
		p.OnICECandidate(func(cand *webrtc.ICECandidate) {
			if cand == nil {
				return
			}
			init := cand.ToJSON()
			if err := reply(&message.Connect{Ice: &init}); err != nil {
				util.LogDebug("dispatch: ice candidate reply failed for %s: %v", origin, err)
			}
		})
		go d.awaitDataChannel(origin, p)
		return p, nil
	})
	if err != nil {
		util.LogWarning("dispatch: creating peer connection for %s failed: %v", origin, err)
		_ = reply(&message.Error{Msg: "connect failed"})
		return
	}

	if c.Sdp != nil {
		switch c.Sdp.Type {
		case webrtc.SDPTypeOffer:
			if err := peer.SetRemoteDescription(*c.Sdp); err != nil {
				util.LogWarning("dispatch: set remote offer from %s: %v", origin, err)
				return
			}
			answer, err := peer.CreateAnswer()
			if err != nil {
				util.LogWarning("dispatch: create answer for %s: %v", origin, err)
				return
			}
			if err := reply(&message.Connect{Sdp: &answer}); err != nil {
				util.LogDebug("dispatch: answer reply failed for %s: %v", origin, err)
			}
		case webrtc.SDPTypeAnswer:
			if err := peer.SetRemoteDescription(*c.Sdp); err != nil {
				util.LogWarning("dispatch: set remote answer from %s: %v", origin, err)
			}
		default:
			util.LogWarning("dispatch: unexpected sdp type %s from %s", c.Sdp.Type, origin)
		}
	}

	if c.Ice != nil {
		if err := peer.AddICECandidate(*c.Ice); err != nil {
			util.LogWarning("dispatch: add ice candidate from %s: %v", origin, err)
		}
	}
}

// awaitDataChannel registers the peer's DataChannel route once it opens,
// so future direct sends to origin prefer the DC over the WS fallback —
// or any earlier DC, per last-writer-wins (SPEC_FULL.md §9).
func (d *Dispatcher) awaitDataChannel(origin identity.PeerId, peer *rtcpeer.Peer) {
	opened := false
	select {
	case <-peer.Ready():
		d.routes.Set(origin, route.NewDC(peer))
		metrics.RoutesOpened.WithLabelValues("dc").Inc()
		util.Stats.AddRouteOpened()
		opened = true
	case <-peer.Done():
	case <-d.ctx.Done():
		return
	}

	if opened {
		<-peer.Done()
	}
	d.conns.Delete(origin)
	if opened {
		// Guard against clobbering a route that has since replaced this
		// one for origin (e.g. the peer reconnected over WS in the
		// meantime) — only remove it if it's still ours.
		d.routes.DeleteIfSender(origin, peer)
		metrics.RoutesClosed.WithLabelValues("dc").Inc()
		util.Stats.AddRouteClosed()
	}
}
