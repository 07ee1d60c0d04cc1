// Package wsconn implements the inbound WebSocket transport: the HTTP
// upgrade handshake, a read pump that decodes envelope.Full frames, and a
// write pump backed by an unbounded-producer outbox so a slow dispatcher
// send never stalls the reader.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/util"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Upgrader accepts connections from any origin — this is a public relay
// peer, not a browser-same-origin service.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn wraps one inbound WebSocket connection.
type Conn struct {
	LogID string

	ws  *websocket.Conn
	out *outbox

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Accept upgrades an HTTP request to a WebSocket connection and returns a
// Conn ready for ReadPump/WritePump. ctx governs the connection's lifetime
// (typically the server's root context).
func Accept(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade failed: %w", err)
	}

	cCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		LogID:  uuid.NewString()[:8],
		ws:     ws,
		out:    newOutbox(),
		ctx:    cCtx,
		cancel: cancel,
	}

	go c.writePump()
	return c, nil
}

// ReadPump blocks, decoding inbound frames into envelope.Full and handing
// each to deliver, until the connection closes or ctx is cancelled.
// Callers run this in its own goroutine.
func (c *Conn) ReadPump(deliver func(*envelope.Full)) {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			util.LogDebug("[%s] websocket read ended: %v", c.LogID, err)
			return
		}

		util.Stats.AddRecv(len(data))
		var full envelope.Full
		if err := json.Unmarshal(data, &full); err != nil {
			util.LogWarning("[%s] malformed envelope: %v", c.LogID, err)
			continue
		}
		deliver(&full)

		select {
		case <-c.ctx.Done():
			return
		default:
		}
	}
}

// writePump drains the outbox and writes frames to the socket. It never
// blocks on the dispatcher — SendFull only ever touches the outbox, which
// is unbounded, matching the teacher's Push/Drain/Ready() reassembler
// idiom (internal/adapter/reassembler.go) repurposed from packet
// reordering to a send queue.
func (c *Conn) writePump() {
	defer c.Close()
	for {
		select {
		case <-c.out.Ready():
			for _, data := range c.out.Drain() {
				if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
					util.LogDebug("[%s] websocket write failed: %v", c.LogID, err)
					return
				}
				util.Stats.AddSent(len(data))
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// SendFull encodes f and enqueues it on the outbox, satisfying
// route.Sender. It never blocks.
func (c *Conn) SendFull(f *envelope.Full) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("wsconn: encoding envelope: %w", err)
	}
	c.out.Push(data)
	return nil
}

// Closed reports whether the connection has shut down, satisfying
// route.Sender.
func (c *Conn) Closed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Close shuts the connection down exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

// Done returns a channel closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }
