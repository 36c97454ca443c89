package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// EphemeralPrivateKey and EphemeralPublicKey are the X25519 key-exchange
// keys used for a single peer session. They are generated fresh per
// session and discarded with it; the long-lived ed25519 identity key is
// never used for the transport (see the handshake open question in the
// package doc of p2p).
type EphemeralPrivateKey [32]byte
type EphemeralPublicKey [32]byte

// GenerateEphemeralKeyPair creates a fresh X25519 key pair for one
// handshake.
func GenerateEphemeralKeyPair() (EphemeralPrivateKey, EphemeralPublicKey, error) {
	var priv EphemeralPrivateKey
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return EphemeralPrivateKey{}, EphemeralPublicKey{}, fmt.Errorf("crypto: generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return EphemeralPrivateKey{}, EphemeralPublicKey{}, fmt.Errorf("crypto: derive ephemeral public key: %w", err)
	}
	var pk EphemeralPublicKey
	copy(pk[:], pub)
	return priv, pk, nil
}

// DeriveShared computes the shared secret from the local private key and
// the remote's public key. Both sides of a session arrive at the same
// 32-byte secret (handshake symmetry, spec invariant 8).
func DeriveShared(priv EphemeralPrivateKey, remotePub EphemeralPublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(priv[:], remotePub[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: compute shared secret: %w", err)
	}
	return shared, nil
}
