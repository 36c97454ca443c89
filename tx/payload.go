// Package tx implements the transaction lifecycle: a transaction is
// accepted (structurally verified), then validated (executed against a
// cloned world-state and permission-checked) into either a valid or a
// rejected terminal state. Ownership is linear — each transition consumes
// its predecessor by value, matching spec.md §4.4.
package tx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/wsv"
)

// Payload is the part of a transaction covered by its signatures.
type Payload struct {
	Account      string
	Instructions []wsv.Instruction
	CreatedAtMs  uint64
	TimeToLiveMs uint64
}

// CanonicalBytes implements crypto.Encodable.
func (p Payload) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.String(p.Account)
	crypto.Slice[wsv.Instruction](e, p.Instructions)
	e.Uint64(p.CreatedAtMs)
	e.Uint64(p.TimeToLiveMs)
	return e.Out()
}

// Hash is the domain-tagged hash of the payload. It is what gets signed,
// and it is what every lifecycle state's Hash method returns — hashes are
// stable across Accepted/Valid/Rejected transitions (spec.md §4.4, §8
// invariant 1).
func (p Payload) Hash() crypto.Hash[Payload] {
	return crypto.HashOf(p)
}

// IsExpired reports whether the transaction should be dropped from a
// mempool: the time since creation exceeds the lesser of the payload's own
// TimeToLiveMs and the caller-supplied ceiling (e.g. a queue-wide maximum
// TTL), mirroring the original's is_expired.
func (p Payload) IsExpired(nowMs uint64, maxTTL time.Duration) bool {
	ttl := p.TimeToLiveMs
	if maxMs := uint64(maxTTL.Milliseconds()); maxMs < ttl {
		ttl = maxMs
	}
	if nowMs < p.CreatedAtMs {
		return false
	}
	return nowMs-p.CreatedAtMs > ttl
}

// instructionWire tags a wire-encoded instruction with the string its
// wsv.InstructionRegistry decoder is registered under.
type instructionWire struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type payloadWire struct {
	Account      string            `json:"account"`
	Instructions []instructionWire `json:"instructions"`
	CreatedAtMs  uint64            `json:"created_at_ms"`
	TimeToLiveMs uint64            `json:"time_to_live_ms"`
}

// MarshalJSON encodes each instruction as a tagged envelope so
// UnmarshalJSON can route it back to the registered decoder for its
// concrete type.
func (p Payload) MarshalJSON() ([]byte, error) {
	instrs := make([]instructionWire, len(p.Instructions))
	for i, instr := range p.Instructions {
		data, err := json.Marshal(instr)
		if err != nil {
			return nil, fmt.Errorf("tx: marshaling instruction %d: %w", i, err)
		}
		instrs[i] = instructionWire{Tag: instr.Tag(), Data: data}
	}
	return json.Marshal(payloadWire{
		Account:      p.Account,
		Instructions: instrs,
		CreatedAtMs:  p.CreatedAtMs,
		TimeToLiveMs: p.TimeToLiveMs,
	})
}

// UnmarshalJSON decodes a payload, routing each instruction envelope
// through wsv.DecodeInstruction by its tag.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	instrs := make([]wsv.Instruction, len(w.Instructions))
	for i, iw := range w.Instructions {
		instr, err := wsv.DecodeInstruction(iw.Tag, iw.Data)
		if err != nil {
			return fmt.Errorf("tx: instruction %d: %w", i, err)
		}
		instrs[i] = instr
	}
	p.Account = w.Account
	p.Instructions = instrs
	p.CreatedAtMs = w.CreatedAtMs
	p.TimeToLiveMs = w.TimeToLiveMs
	return nil
}

// Signature pairs a signer's public key with its signature over a
// Payload. Unlike BlockSignature, a transaction signature is
// self-verifying: it carries its own public key rather than a topology
// node position, since any account (not just a peer) may sign a
// transaction.
type Signature struct {
	PublicKey crypto.PublicKey    `json:"public_key"`
	Sig       crypto.Sig[Payload] `json:"signature"`
}

// Verify checks the signature against payload.
func (s Signature) Verify(payload Payload) error {
	return s.Sig.Verify(s.PublicKey, payload)
}

// Transaction is an unaccepted, freshly-constructed transaction.
type Transaction struct {
	Payload    Payload
	Signatures []Signature
}

// Sign appends a signature by priv over the payload.
func (t *Transaction) Sign(priv crypto.PrivateKey) {
	t.Signatures = append(t.Signatures, Signature{
		PublicKey: priv.Public(),
		Sig:       crypto.SignOf(priv, t.Payload),
	})
}
