package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SessionAAD is the fixed associated data every peer-session frame is
// authenticated under, the 12 bytes "Iroha2Iroha2" (spec.md §4.5/§6).
// Preserved verbatim from the source protocol rather than replaced with a
// per-deployment value, matching the "preserve unless consciously changed"
// guidance for this handshake in spec.md §9.
var SessionAAD = []byte("Iroha2Iroha2")

// Encryptor wraps a ChaCha20-Poly1305 AEAD keyed by a DH shared secret. It
// is constructed once per session after the handshake and dropped with the
// session actor.
type Encryptor struct {
	aead cipherAEAD
}

// cipherAEAD is the subset of cipher.AEAD used here, named locally so the
// zero value of Encryptor is a visibly unusable state rather than a nil
// interface surprise.
type cipherAEAD interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewEncryptor derives a 32-byte ChaCha20-Poly1305 key from the raw DH
// shared secret (by hashing it, since X25519 output is not guaranteed
// uniformly random) and constructs the AEAD.
func NewEncryptor(sharedSecret []byte) (*Encryptor, error) {
	key := sha256.Sum256(sharedSecret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new encryptor: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext under SessionAAD, returning nonce||ciphertext.
// A fresh random nonce is generated per call.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+e.aead.Overhead())
	out = append(out, nonce...)
	out = e.aead.Seal(out, nonce, plaintext, SessionAAD)
	return out, nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal, verifying
// SessionAAD. Any failure (truncated input, wrong key, tampered data) is
// returned as an error; the caller transitions the session to Error.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("crypto: sealed message shorter than nonce")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, SessionAAD)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}
