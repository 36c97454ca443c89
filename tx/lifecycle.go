package tx

import (
	"encoding/json"
	"fmt"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/wsv"
)

// SignatureCondition is the account-defined predicate over a transaction's
// signer set (e.g. "at least 2 of these 3 keys"). It is supplied by the
// caller rather than hard-coded: the account/permission model itself is
// out of scope for this core (spec.md §1).
type SignatureCondition func(signatures []Signature) (bool, error)

// Accepted is a transaction whose instruction count and signatures have
// been structurally verified.
type Accepted struct {
	payload    Payload
	signatures []Signature
}

// Accept verifies instruction count and signature structure, producing an
// Accepted transaction (spec.md §4.4 "accept").
func Accept(t Transaction, maxInstructions int) (Accepted, error) {
	if len(t.Payload.Instructions) > maxInstructions {
		return Accepted{}, fmt.Errorf("tx: too many instructions: %d > %d", len(t.Payload.Instructions), maxInstructions)
	}
	for i, sig := range t.Signatures {
		if err := sig.Verify(t.Payload); err != nil {
			return Accepted{}, fmt.Errorf("tx: signature %d verification failed: %w", i, err)
		}
	}
	return Accepted{payload: t.Payload, signatures: t.Signatures}, nil
}

// Hash returns the payload hash, stable across every lifecycle state.
func (a Accepted) Hash() crypto.Hash[Payload] { return a.payload.Hash() }

// Payload exposes the underlying payload (read-only use by callers that
// need to inspect it, e.g. the mempool's expiry check).
func (a Accepted) Payload() Payload { return a.payload }

// Validate moves an Accepted transaction forward: genesis guard, signature
// re-verification, signature-condition check, then instruction execution
// against a clone of w with permission checks (spec.md §4.4 "validate").
// genesisAccount is the account id signing genesis transactions;
// isGenesis relaxes the genesis-account guard and skips permission checks.
//
// It returns a Value wrapping whichever terminal state the transaction
// reached (Valid or Rejected) and, on rejection, the same RejectionReason as
// a non-nil error — a caller that only cares whether the transaction
// committed can check err == nil, while one that needs the full terminal
// state (e.g. for block inclusion) uses the returned Value either way. This
// avoids inferring success from a zero-valued Payload field, which would
// misclassify a legitimately empty account as a rejection.
func (a Accepted) Validate(
	w wsv.WorldStateView,
	perm wsv.PermissionValidator,
	cond SignatureCondition,
	isGenesis bool,
	genesisAccount string,
) (Value, error) {
	if !isGenesis && a.payload.Account == genesisAccount {
		reason := RejectionReason{
			Kind:   ReasonUnexpectedGenesisAccountSignature,
			Detail: fmt.Sprintf("account %q is not genesis but signed as %q", a.payload.Account, genesisAccount),
		}
		return NewRejectedValue(a.reject(reason)), reason
	}

	for i, sig := range a.signatures {
		if err := sig.Verify(a.payload); err != nil {
			reason := RejectionReason{
				Kind:   ReasonSignatureVerification,
				Detail: fmt.Sprintf("signature %d: %v", i, err),
			}
			return NewRejectedValue(a.reject(reason)), reason
		}
	}

	if cond != nil {
		ok, err := cond(a.signatures)
		if err != nil {
			reason := RejectionReason{
				Kind:   ReasonUnsatisfiedSignatureCondition,
				Detail: err.Error(),
			}
			return NewRejectedValue(a.reject(reason)), reason
		}
		if !ok {
			reason := RejectionReason{
				Kind:   ReasonUnsatisfiedSignatureCondition,
				Detail: "signature condition not satisfied",
			}
			return NewRejectedValue(a.reject(reason)), reason
		}
	}

	clone := w.Clone()
	for i, instr := range a.payload.Instructions {
		if err := instr.Execute(a.payload.Account, clone); err != nil {
			reason := RejectionReason{
				Kind:             ReasonInstructionExecution,
				InstructionIndex: i,
				Detail:           err.Error(),
			}
			return NewRejectedValue(a.reject(reason)), reason
		}
		if !isGenesis {
			if err := perm.CheckInstruction(a.payload.Account, instr, w); err != nil {
				reason := RejectionReason{
					Kind:             ReasonNotPermitted,
					InstructionIndex: i,
					Detail:           err.Error(),
				}
				return NewRejectedValue(a.reject(reason)), reason
			}
		}
	}

	valid := Valid{payload: a.payload, signatures: a.signatures}
	return NewValidValue(valid), nil
}

func (a Accepted) reject(reason RejectionReason) Rejected {
	return Rejected{payload: a.payload, signatures: a.signatures, Reason: reason}
}

// Valid is a transaction that has passed every check in Validate but whose
// instructions have not yet been committed to the canonical world-state.
type Valid struct {
	payload    Payload
	signatures []Signature
}

// Hash returns the payload hash, stable across lifecycle states.
func (v Valid) Hash() crypto.Hash[Payload] { return v.payload.Hash() }

// Payload exposes the underlying payload.
func (v Valid) Payload() Payload { return v.payload }

// Signatures exposes the transaction's signatures, e.g. for inclusion in a
// Value.
func (v Valid) Signatures() []Signature { return v.signatures }

type validWire struct {
	Payload    Payload     `json:"payload"`
	Signatures []Signature `json:"signatures"`
}

// MarshalJSON implements json.Marshaler for the otherwise-unexported fields.
func (v Valid) MarshalJSON() ([]byte, error) {
	return json.Marshal(validWire{Payload: v.payload, Signatures: v.signatures})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Valid) UnmarshalJSON(data []byte) error {
	var w validWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.payload = w.Payload
	v.signatures = w.Signatures
	return nil
}

// Proceed re-executes the instructions against a fresh clone of w and
// returns the resulting state on success. Atomicity is at transaction
// granularity: the caller only adopts the returned clone if err is nil, so
// partial effects of a failing transaction are never observed (spec.md
// §4.4 "proceed").
func (v Valid) Proceed(w wsv.WorldStateView) (wsv.WorldStateView, error) {
	clone := w.Clone()
	for i, instr := range v.payload.Instructions {
		if err := instr.Execute(v.payload.Account, clone); err != nil {
			return nil, fmt.Errorf("tx: proceed: instruction %d: %w", i, err)
		}
	}
	return clone, nil
}

// Reject terminates a Valid transaction (e.g. it lost a later re-validation
// race, or its block was never committed).
func (v Valid) Reject(reason RejectionReason) Rejected {
	return Rejected{payload: v.payload, signatures: v.signatures, Reason: reason}
}

// Rejected is a terminal transaction state carrying why it was rejected.
type Rejected struct {
	payload    Payload
	signatures []Signature
	Reason     RejectionReason
}

// Hash returns the payload hash, stable across lifecycle states.
func (r Rejected) Hash() crypto.Hash[Payload] { return r.payload.Hash() }

// Payload exposes the underlying payload.
func (r Rejected) Payload() Payload { return r.payload }

// Signatures exposes the transaction's signatures.
func (r Rejected) Signatures() []Signature { return r.signatures }

type rejectedWire struct {
	Payload    Payload         `json:"payload"`
	Signatures []Signature     `json:"signatures"`
	Reason     RejectionReason `json:"reason"`
}

// MarshalJSON implements json.Marshaler for the otherwise-unexported fields.
func (r Rejected) MarshalJSON() ([]byte, error) {
	return json.Marshal(rejectedWire{Payload: r.payload, Signatures: r.signatures, Reason: r.Reason})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rejected) UnmarshalJSON(data []byte) error {
	var w rejectedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.payload = w.Payload
	r.signatures = w.Signatures
	r.Reason = w.Reason
	return nil
}

// IsInBlockchain reports whether hash has already been committed to w.
func IsInBlockchain(hash crypto.Hash[Payload], w wsv.WorldStateView) bool {
	return w.ContainsTx(hash.Hex())
}
