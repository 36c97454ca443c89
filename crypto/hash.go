package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash is a fixed-width digest tagged by the domain type T. Hash[BlockPayload]
// and Hash[SignedBlock] are distinct Go types even though both are plain
// 32-byte arrays underneath — the type parameter exists purely so the
// compiler refuses to compare or substitute hashes across domains.
type Hash[T any] [32]byte

// HashOf computes the domain-tagged hash of v from its canonical encoding.
func HashOf[T Encodable](v T) Hash[T] {
	return Hash[T](sha256.Sum256(v.CanonicalBytes()))
}

// Bytes returns the raw digest bytes.
func (h Hash[T]) Bytes() []byte {
	return h[:]
}

// Hex returns the lowercase hex encoding of the digest.
func (h Hash[T]) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero digest. Block headers mark an
// absent hash with a nil pointer, not with the zero digest.
func (h Hash[T]) IsZero() bool {
	return h == Hash[T]{}
}

// MarshalJSON encodes the digest as a lowercase hex string.
func (h Hash[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a lowercase hex string into the digest.
func (h *Hash[T]) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("crypto: decoding hash: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("crypto: hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

// CombinePair hashes two child digests together for one level of a Merkle
// tree: SHA-256(left || right). Kept domain-generic since a Merkle tree's
// internal nodes share the leaf domain.
func CombinePair[T any](left, right Hash[T]) Hash[T] {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return Hash[T](sha256.Sum256(buf))
}

// HashBytes returns the raw SHA-256 bytes of data, for call sites that need
// a plain digest outside the domain-tagged Hash[T] machinery (e.g. the
// state root in storage.StateDB.ComputeRoot).
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
