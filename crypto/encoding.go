package crypto

import (
	"bytes"
	"encoding/binary"
)

// Encodable is implemented by every hashable/signable domain type. It must
// produce a deterministic byte encoding: little-endian integers,
// length-prefixed variable-size fields, fixed field order. Two values that
// compare equal must encode identically, and vice versa.
type Encodable interface {
	CanonicalBytes() []byte
}

// Encoder accumulates a canonical byte encoding. It is the one place the
// little-endian / length-prefix convention lives, so every domain type's
// CanonicalBytes method reads the same way.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Uint64 appends v as 8 little-endian bytes.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Bytes appends a 4-byte little-endian length prefix followed by b.
func (e *Encoder) Bytes(b []byte) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf.Write(lenBuf[:])
	e.buf.Write(b)
	return e
}

// String appends s as a length-prefixed byte string.
func (e *Encoder) String(s string) *Encoder {
	return e.Bytes([]byte(s))
}

// Bool appends a single byte, 1 for true and 0 for false.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	return e
}

// OptionalBytes appends a presence byte followed by Bytes(b) when present is
// true. Used for fields like BlockHeader.PreviousBlockHash that are absent
// exactly once (genesis).
func (e *Encoder) OptionalBytes(present bool, b []byte) *Encoder {
	e.Bool(present)
	if present {
		e.Bytes(b)
	}
	return e
}

// Sub appends the canonical bytes of a nested Encodable, length-prefixed so
// concatenation of two sub-encodings can never be confused with a single
// longer one.
func (e *Encoder) Sub(v Encodable) *Encoder {
	return e.Bytes(v.CanonicalBytes())
}

// Slice appends a 4-byte little-endian count followed by each element's
// canonical bytes in order.
func Slice[T Encodable](e *Encoder, items []T) *Encoder {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(items)))
	e.buf.Write(lenBuf[:])
	for _, it := range items {
		e.Sub(it)
	}
	return e
}

// Out returns the accumulated encoding.
func (e *Encoder) Out() []byte {
	return e.buf.Bytes()
}
