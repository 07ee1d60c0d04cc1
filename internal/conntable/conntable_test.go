package conntable

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/rtcpeer"
	"github.com/stretchr/testify/require"
)

func newPeerId(t *testing.T) identity.PeerId {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return id.PeerId()
}

func newTestPeer(t *testing.T) *rtcpeer.Peer {
	t.Helper()
	p, err := rtcpeer.New(context.Background(), rtcpeer.DefaultSTUNServers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestGetOrCreateCallsCreateOnlyOnce(t *testing.T) {
	tbl := New()
	id := newPeerId(t)

	var calls atomic.Int32
	create := func() (*rtcpeer.Peer, error) {
		calls.Add(1)
		return newTestPeer(t), nil
	}

	p1, err := tbl.GetOrCreate(id, create)
	require.NoError(t, err)
	p2, err := tbl.GetOrCreate(id, create)
	require.NoError(t, err)

	require.Same(t, p1, p2)
	require.EqualValues(t, 1, calls.Load())
}

func TestGetOrCreatePropagatesCreateError(t *testing.T) {
	tbl := New()
	id := newPeerId(t)

	wantErr := errors.New("create failed")
	_, err := tbl.GetOrCreate(id, func() (*rtcpeer.Peer, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok := tbl.Get(id)
	require.False(t, ok)
}

func TestDeleteRemovesPeer(t *testing.T) {
	tbl := New()
	id := newPeerId(t)

	_, err := tbl.GetOrCreate(id, func() (*rtcpeer.Peer, error) {
		return newTestPeer(t), nil
	})
	require.NoError(t, err)

	tbl.Delete(id)
	_, ok := tbl.Get(id)
	require.False(t, ok)
}
