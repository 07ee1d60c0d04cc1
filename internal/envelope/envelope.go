// Package envelope implements the signed outer frame every wire message
// travels in: origin PeerId, JSON-encoded body, and a signature over that
// body.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/evan-brass/hyperspace/internal/identity"
	"github.com/evan-brass/hyperspace/internal/message"
)

// Full is the wire-level envelope: an unverified claim of origin plus a
// signature over the raw body bytes.
type Full struct {
	Origin    identity.PeerId   `json:"origin"`
	Body      string            `json:"body"`
	Signature identity.Signature `json:"signature"`
}

// Verified is a Full envelope whose signature has already been checked and
// whose body has already been decoded. Only dispatch code should construct
// one, and only via Verify.
type Verified struct {
	Origin  identity.PeerId
	Message message.Message
}

// Seal signs a local message and wraps it in a Full envelope ready to send.
func Seal(id *identity.Identity, msg message.Message) (*Full, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("envelope: encoding body: %w", err)
	}
	sig, err := id.Sign(body)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return &Full{
		Origin:    id.PeerId(),
		Body:      string(body),
		Signature: sig,
	}, nil
}

// Verify checks f's signature against its claimed origin and decodes its
// body into a Message. This is the real check the original schema left as
// a TODO ("verify the signature on the body") — closed here.
func (f *Full) Verify() (*Verified, error) {
	body := []byte(f.Body)
	if err := identity.Verify(f.Origin, body, f.Signature); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	msg, err := message.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("envelope: decoding body: %w", err)
	}

	return &Verified{Origin: f.Origin, Message: msg}, nil
}
