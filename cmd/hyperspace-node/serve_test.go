package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/evan-brass/hyperspace/internal/dispatch"
	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
	"github.com/evan-brass/hyperspace/internal/nodeconfig"
)

// TestWSHandlerSendsAddressesGreetingFirst matches the mandatory greeting
// scenario: the very first frame a client receives after the upgrade must
// be a signed Addresses announcement, before the client has sent anything.
func TestWSHandlerSendsAddressesGreetingFirst(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	d := dispatch.New(context.Background(), id, dispatch.Config{
		Addresses: nodeconfig.NewInMemoryAddressBook([]string{"wss://node.example:8443/ws"}),
	})
	go d.Run(context.Background())

	srv := httptest.NewServer(wsHandler(context.Background(), d))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var full envelope.Full
	require.NoError(t, json.Unmarshal(data, &full))

	verified, err := full.Verify()
	require.NoError(t, err)
	require.Equal(t, id.PeerId(), verified.Origin)

	addrs, ok := verified.Message.(*message.Addresses)
	require.True(t, ok, "first frame must be an Addresses greeting")
	require.Equal(t, []string{"wss://node.example:8443/ws"}, addrs.Addresses)
}

// TestWSHandlerDoesNotRegisterRouteFromUnverifiedFrame matches the
// registration-ordering invariant: a connection's claimed origin must not
// get a route until the dispatcher has verified a signature against it —
// sending a frame with a forged Origin must not install a route for it.
func TestWSHandlerDoesNotRegisterRouteFromUnverifiedFrame(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	d := dispatch.New(context.Background(), id, dispatch.Config{})
	go d.Run(context.Background())

	srv := httptest.NewServer(wsHandler(context.Background(), d))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Drain the mandatory greeting first.
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	claimed, err := identity.Generate()
	require.NoError(t, err)
	actual, err := identity.Generate()
	require.NoError(t, err)

	full, err := envelope.Seal(actual, &message.AppData{Content: "hi"})
	require.NoError(t, err)
	full.Origin = claimed.PeerId()

	body, err := json.Marshal(full)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	// Give the dispatcher's consumer goroutine time to process the frame.
	time.Sleep(100 * time.Millisecond)
	_, ok := d.Routes().Get(claimed.PeerId())
	require.False(t, ok, "a forged origin must never get a route registered")
	_, ok = d.Routes().Get(actual.PeerId())
	require.False(t, ok)
}
