package rtcpeer

import (
	"context"
	"testing"
	"time"

	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// connectPair drives a full offer/answer/ICE exchange between two local
// Peers over a loopback connection, the same local-signaling shortcut the
// teacher's transport tests use to avoid a real network.
func connectPair(t *testing.T) (a, b *Peer) {
	t.Helper()
	ctx := context.Background()

	var err error
	a, err = New(ctx, DefaultSTUNServers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err = New(ctx, DefaultSTUNServers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	a.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			_ = b.AddICECandidate(c.ToJSON())
		}
	})
	b.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			_ = a.AddICECandidate(c.ToJSON())
		}
	})

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, b.SetRemoteDescription(offer))

	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, a.SetRemoteDescription(answer))

	select {
	case <-a.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer a's data channel to open")
	}
	select {
	case <-b.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer b's data channel to open")
	}
	return a, b
}

// TestDataChannelUsesFixedStreamID checks that a new Peer creates its
// pre-negotiated channel on stream id 42, the value every peer must use
// out of band.
func TestDataChannelUsesFixedStreamID(t *testing.T) {
	p, err := New(context.Background(), DefaultSTUNServers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NotNil(t, p.dc.ID())
	require.EqualValues(t, 42, *p.dc.ID())
}

func TestSendFullDeliversAcrossPump(t *testing.T) {
	a, b := connectPair(t)

	received := make(chan *envelope.Full, 1)
	b.Pump(func(full *envelope.Full) { received <- full })

	id, err := identity.Generate()
	require.NoError(t, err)
	full, err := envelope.Seal(id, &message.AppData{Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, a.SendFull(full))

	select {
	case got := <-received:
		require.Equal(t, full.Origin, got.Origin)
		require.Equal(t, full.Body, got.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestCloseIsIdempotentAndUnblocksDone(t *testing.T) {
	p, err := New(context.Background(), DefaultSTUNServers)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.True(t, p.Closed())

	select {
	case <-p.Done():
	default:
		t.Fatal("Done channel should be closed after Close")
	}
}
