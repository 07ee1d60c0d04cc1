package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (wsURL string, accepted chan *Conn) {
	t.Helper()
	accepted = make(chan *Conn, 1)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(context.Background(), w, r)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		accepted <- c
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), accepted
}

func TestReadPumpDeliversDecodedEnvelope(t *testing.T) {
	url, accepted := startTestServer(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	id, err := identity.Generate()
	require.NoError(t, err)
	full, err := envelope.Seal(id, &message.AppData{Content: "ping"})
	require.NoError(t, err)

	data, err := json.Marshal(full)
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, data))

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	received := make(chan *envelope.Full, 1)
	go server.ReadPump(func(f *envelope.Full) { received <- f })

	select {
	case got := <-received:
		require.Equal(t, full.Origin, got.Origin)
		require.Equal(t, full.Body, got.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSendFullReachesClient(t *testing.T) {
	url, accepted := startTestServer(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	id, err := identity.Generate()
	require.NoError(t, err)
	full, err := envelope.Seal(id, &message.AppData{Content: "pong"})
	require.NoError(t, err)

	require.NoError(t, server.SendFull(full))

	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var got envelope.Full
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, full.Origin, got.Origin)
}

func TestCloseIsIdempotent(t *testing.T) {
	url, accepted := startTestServer(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())
	require.True(t, server.Closed())
}
