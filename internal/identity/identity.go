// Package identity implements peer identity: P-256 keypairs, PeerId and
// Signature wire types, and message signing/verification.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// PeerIdLen is the length of the SEC1-uncompressed P-256 point encoding
// (0x04 tag + 32-byte X + 32-byte Y) that PeerId stores internally.
const PeerIdLen = 65

// PeerId identifies a peer by its P-256 public key, stored as the SEC1
// *uncompressed* point encoding so that equality and use as a map key are
// defined over a single canonical byte form. The wire encoding (MarshalText)
// uses the SEC1 *compressed* form instead, to keep envelopes small.
type PeerId [PeerIdLen]byte

// PeerIdFromKey derives the PeerId for a public key.
func PeerIdFromKey(pub *ecdsa.PublicKey) PeerId {
	var id PeerId
	copy(id[:], elliptic.Marshal(elliptic.P256(), pub.X, pub.Y))
	return id
}

// PublicKey reconstructs the *ecdsa.PublicKey this PeerId encodes.
func (id PeerId) PublicKey() (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, id[:])
	if x == nil {
		return nil, errors.New("identity: invalid uncompressed point encoding")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// String renders the PeerId the same way MarshalText does, for logging.
func (id PeerId) String() string {
	text, err := id.MarshalText()
	if err != nil {
		return "<invalid-peer-id>"
	}
	return string(text)
}

// MarshalText encodes the PeerId as base64 of its SEC1-compressed point
// encoding, matching the wire format the overlay network uses for PeerId.
func (id PeerId) MarshalText() ([]byte, error) {
	pub, err := id.PublicKey()
	if err != nil {
		return nil, err
	}
	compressed := elliptic.MarshalCompressed(elliptic.P256(), pub.X, pub.Y)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(compressed)))
	base64.StdEncoding.Encode(out, compressed)
	return out, nil
}

// UnmarshalText decodes a base64 SEC1-compressed point encoding into the
// canonical SEC1-uncompressed in-memory form.
func (id *PeerId) UnmarshalText(text []byte) error {
	compressed, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("identity: invalid base64 peer id: %w", err)
	}
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, compressed)
	if x == nil {
		return errors.New("identity: invalid SEC1-compressed peer id")
	}
	copy(id[:], elliptic.Marshal(curve, x, y))
	return nil
}

// Signature is the raw ASN.1/DER bytes produced by ecdsa.SignASN1.
type Signature []byte

// MarshalText encodes the signature as base64, matching the wire format
// the overlay network uses for Signature.
func (s Signature) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(s)))
	base64.StdEncoding.Encode(out, s)
	return out, nil
}

// UnmarshalText decodes a base64-encoded signature.
func (s *Signature) UnmarshalText(text []byte) error {
	decoded, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("identity: invalid base64 signature: %w", err)
	}
	*s = decoded
	return nil
}

// Identity holds a process's own keypair. A node generates exactly one of
// these per run; there is no persistence (see SPEC_FULL.md §6).
type Identity struct {
	private *ecdsa.PrivateKey
	id      PeerId
}

// Generate creates a fresh Identity backed by a new P-256 keypair.
func Generate() (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: key generation failed: %w", err)
	}
	return &Identity{
		private: priv,
		id:      PeerIdFromKey(&priv.PublicKey),
	}, nil
}

// PeerId returns this identity's public PeerId.
func (i *Identity) PeerId() PeerId {
	return i.id
}

// Sign produces a Signature over body's SHA-256 digest using this
// identity's private key.
func (i *Identity) Sign(body []byte) (Signature, error) {
	digest := sha256.Sum256(body)
	sig, err := ecdsa.SignASN1(rand.Reader, i.private, digest[:])
	if err != nil {
		return nil, fmt.Errorf("identity: sign failed: %w", err)
	}
	return Signature(sig), nil
}

// Verify checks that sig is a valid signature over body's SHA-256 digest
// under origin's public key.
func Verify(origin PeerId, body []byte, sig Signature) error {
	pub, err := origin.PublicKey()
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	digest := sha256.Sum256(body)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return errors.New("identity: signature verification failed")
	}
	return nil
}
