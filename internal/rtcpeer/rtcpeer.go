// Package rtcpeer wraps a single WebRTC PeerConnection plus its
// pre-negotiated DataChannel, the way the teacher's internal/transport
// package wraps a PeerConnection for the tunnel tool — generalized here to
// carry signed envelope.Full frames instead of raw tunnel packets.
//
// Both sides of a connection must agree on the DataChannel's label and
// stream id out of band since it's pre-negotiated (negotiated = true);
// this package bakes in the fixed stream id 42 both peers are required to
// use.
package rtcpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/util"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// DataChannelLabel is the pre-negotiated channel's label. Both sides must
// agree on it and on the channel ID (42) out of band — they do, since both
// are constants baked into this package.
const DataChannelLabel = "hyperspace-protocol"

// DefaultSTUNServers mirrors the teacher's STUN list — no TURN, since the
// overlay network assumes direct P2P connectivity is reachable.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// inboxBufferSize bounds the per-peer pre-pump buffer fed by the
// DataChannel's OnMessage callback; the callback must return quickly, so it
// only ever does a non-blocking push here.
const inboxBufferSize = 32

// Peer wraps one PeerConnection/DataChannel pair.
type Peer struct {
	LogID string // short correlation id for this peer's log lines

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	ctx    context.Context
	cancel context.CancelFunc

	openSignal chan struct{}
	openOnce   sync.Once
	closeOnce  sync.Once

	raw chan []byte // fed by OnMessage, drained by the pump goroutine

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// New creates a Peer backed by a fresh PeerConnection and pre-negotiated
// DataChannel. ctx governs the Peer's lifetime.
func New(ctx context.Context, stunServers []string) (*Peer, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("rtcpeer: new peer connection: %w", err)
	}

	ordered := true
	negotiated := true
	id := uint16(42)
	dc, err := pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("rtcpeer: new data channel: %w", err)
	}

	pCtx, cancel := context.WithCancel(ctx)
	p := &Peer{
		LogID:      uuid.NewString()[:8],
		pc:         pc,
		dc:         dc,
		ctx:        pCtx,
		cancel:     cancel,
		openSignal: make(chan struct{}),
		raw:        make(chan []byte, inboxBufferSize),
		pcState:    webrtc.PeerConnectionStateNew,
	}

	dc.OnOpen(func() {
		p.openOnce.Do(func() { close(p.openSignal) })
	})
	dc.OnClose(func() {
		util.LogDebug("[%s] data channel closed", p.LogID)
		p.Close()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("[%s] peer connection state: %s", p.LogID, state)
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.raw <- msg.Data:
		default:
			util.LogWarning("[%s] data channel inbox full, dropping message", p.LogID)
		}
	})

	return p, nil
}

// Pump starts the goroutine that decodes inbound DataChannel frames and
// hands them, in arrival order, to deliver. It runs until ctx is
// cancelled or the Peer closes. A single goroutine drains p.raw, so
// per-source FIFO ordering is preserved even though deliver may block.
func (p *Peer) Pump(deliver func(*envelope.Full)) {
	go func() {
		for {
			select {
			case data := <-p.raw:
				util.Stats.AddRecv(len(data))
				var full envelope.Full
				if err := json.Unmarshal(data, &full); err != nil {
					util.LogWarning("[%s] malformed envelope: %v", p.LogID, err)
					continue
				}
				deliver(&full)
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// Ready returns a channel closed once the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} { return p.openSignal }

// Done returns a channel closed once the Peer has shut down.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Close tears down the DataChannel and PeerConnection exactly once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = errors.Join(p.dc.Close(), p.pc.Close())
	})
	return err
}

// Closed reports whether the Peer has shut down, satisfying route.Sender.
func (p *Peer) Closed() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates a local SDP offer and sets it as the local
// description.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return offer, fmt.Errorf("rtcpeer: create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return offer, fmt.Errorf("rtcpeer: set local description: %w", err)
	}
	return offer, nil
}

// CreateAnswer generates a local SDP answer and sets it as the local
// description. Call after SetRemoteDescription has applied the remote
// offer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return answer, fmt.Errorf("rtcpeer: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return answer, fmt.Errorf("rtcpeer: set local description: %w", err)
	}
	return answer, nil
}

// SetRemoteDescription applies a remote SDP offer or answer.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("rtcpeer: set remote description: %w", err)
	}
	return nil
}

// AddICECandidate adds a remote trickled ICE candidate.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("rtcpeer: add ice candidate: %w", err)
	}
	return nil
}

// OnICECandidate registers a callback invoked for each locally gathered ICE
// candidate. A nil candidate marks the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// SendFull encodes and sends a signed envelope over the DataChannel,
// satisfying route.Sender. pion's DataChannel.Send already buffers
// internally, so no additional outbox is needed on this arm.
func (p *Peer) SendFull(f *envelope.Full) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("rtcpeer: encoding envelope: %w", err)
	}
	if err := p.dc.Send(data); err != nil {
		return fmt.Errorf("rtcpeer: data channel send: %w", err)
	}
	util.Stats.AddSent(len(data))
	return nil
}
