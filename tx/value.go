package tx

import (
	"encoding/json"

	"github.com/tolchain/consensuscore/crypto"
)

// Value is the form a transaction takes once embedded in a block: either
// it committed (Valid) or the consensus round recorded why it didn't
// (Rejected). Exactly one of Valid/Rejected is set.
type Value struct {
	Valid    *Valid
	Rejected *Rejected
}

// NewValidValue wraps a committed transaction for block inclusion.
func NewValidValue(v Valid) Value { return Value{Valid: &v} }

// NewRejectedValue wraps a rejected transaction for block inclusion.
func NewRejectedValue(r Rejected) Value { return Value{Rejected: &r} }

// Hash returns the wrapped transaction's payload hash (stable regardless of
// which terminal state it ended up in, per spec.md §8 invariant 1).
func (tv Value) Hash() crypto.Hash[Payload] {
	if tv.Valid != nil {
		return tv.Valid.Hash()
	}
	return tv.Rejected.Hash()
}

// CanonicalBytes implements crypto.Encodable so a slice of Values can be
// hashed into a BlockPayload and merkle-rooted into a BlockHeader.
func (tv Value) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	if tv.Valid != nil {
		e.Bool(true)
		e.Sub(tv.Valid.payload)
		crypto.Slice[Signature](e, tv.Valid.signatures)
	} else {
		e.Bool(false)
		e.Sub(tv.Rejected.payload)
		crypto.Slice[Signature](e, tv.Rejected.signatures)
		e.String(tv.Rejected.Reason.Kind.String())
		e.String(tv.Rejected.Reason.Detail)
	}
	return e.Out()
}

// CanonicalBytes implements crypto.Encodable for Signature so it can be
// embedded via crypto.Slice.
func (s Signature) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.Bytes(s.PublicKey)
	e.Bytes(s.Sig.Bytes)
	return e.Out()
}

type valueWire struct {
	Valid    *Valid    `json:"valid,omitempty"`
	Rejected *Rejected `json:"rejected,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (tv Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueWire{Valid: tv.Valid, Rejected: tv.Rejected})
}

// UnmarshalJSON implements json.Unmarshaler.
func (tv *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	tv.Valid = w.Valid
	tv.Rejected = w.Rejected
	return nil
}
