package envelope

import (
	"testing"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
	"github.com/stretchr/testify/require"
)

func TestSealVerifyRoundTrip(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	full, err := Seal(id, &message.AppData{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, id.PeerId(), full.Origin)

	verified, err := full.Verify()
	require.NoError(t, err)
	require.Equal(t, id.PeerId(), verified.Origin)

	ad, ok := verified.Message.(*message.AppData)
	require.True(t, ok)
	require.Equal(t, "hi", ad.Content)
}

func TestVerifyRejectsForgedOrigin(t *testing.T) {
	signer, err := identity.Generate()
	require.NoError(t, err)
	impostor, err := identity.Generate()
	require.NoError(t, err)

	full, err := Seal(signer, &message.AppData{Content: "hi"})
	require.NoError(t, err)

	full.Origin = impostor.PeerId()
	_, err = full.Verify()
	require.Error(t, err)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	full, err := Seal(id, &message.AppData{Content: "hi"})
	require.NoError(t, err)

	full.Body = `{"type":"app_data","content":"tampered"}`
	_, err = full.Verify()
	require.Error(t, err)
}
