package crypto

import (
	"crypto/ed25519"
	"errors"
)

// Sig is a domain-tagged signature over a value of domain T. Like Hash[T],
// the type parameter exists to stop a Sig[BlockPayload] from being handed
// to code expecting a Sig[ProofPayload].
type Sig[T Encodable] struct {
	Bytes []byte `json:"bytes"`
}

// SignOf signs v's canonical encoding with priv.
func SignOf[T Encodable](priv PrivateKey, v T) Sig[T] {
	return Sig[T]{Bytes: ed25519.Sign(ed25519.PrivateKey(priv), v.CanonicalBytes())}
}

// Verify checks sig against v under pub. A malformed public key or
// signature is reported as an error, never a panic.
func (sig Sig[T]) Verify(pub PublicKey, v T) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("crypto: invalid public key size")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), v.CanonicalBytes(), sig.Bytes) {
		return errors.New("crypto: signature verification failed")
	}
	return nil
}
