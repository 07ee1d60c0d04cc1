package route

import (
	"errors"
	"testing"

	"github.com/evan-brass/hyperspace/internal/envelope"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []*envelope.Full
	closed bool
	sendErr error
}

func (f *fakeSender) SendFull(full *envelope.Full) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, full)
	return nil
}

func (f *fakeSender) Closed() bool { return f.closed }

func TestRouteSendDelegatesToSender(t *testing.T) {
	s := &fakeSender{}
	r := NewDC(s)
	require.Equal(t, DC, r.Kind)

	full := &envelope.Full{Body: "hello"}
	require.NoError(t, r.Send(full))
	require.Len(t, s.sent, 1)
	require.Same(t, full, s.sent[0])
}

func TestRouteSendOnClosedSenderFails(t *testing.T) {
	s := &fakeSender{closed: true}
	r := NewWS(s)
	require.Equal(t, WS, r.Kind)

	err := r.Send(&envelope.Full{})
	require.ErrorIs(t, err, ErrClosed)
	require.True(t, r.Closed())
}

func TestRouteSendWrapsSenderError(t *testing.T) {
	s := &fakeSender{sendErr: errors.New("boom")}
	r := NewDC(s)

	err := r.Send(&envelope.Full{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrClosed)
}

func TestZeroRouteIsClosed(t *testing.T) {
	var r Route
	require.True(t, r.Closed())
	require.ErrorIs(t, r.Send(&envelope.Full{}), ErrClosed)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "ws", WS.String())
	require.Equal(t, "dc", DC.String())
	require.Equal(t, "unknown", Kind(99).String())
}
