package tx

import (
	"encoding/json"
	"fmt"
)

// RejectionKind taxonomizes why a transaction was terminally rejected
// (spec.md §7).
type RejectionKind int

const (
	// ReasonUnexpectedGenesisAccountSignature: a non-genesis transaction
	// was signed by the genesis account.
	ReasonUnexpectedGenesisAccountSignature RejectionKind = iota
	// ReasonSignatureVerification: one or more signatures failed to verify.
	ReasonSignatureVerification
	// ReasonUnsatisfiedSignatureCondition: the account's signer-set
	// predicate returned false, or errored.
	ReasonUnsatisfiedSignatureCondition
	// ReasonInstructionExecution: an instruction failed to execute against
	// the cloned world-state.
	ReasonInstructionExecution
	// ReasonNotPermitted: the permission validator denied an instruction.
	ReasonNotPermitted
)

func (k RejectionKind) String() string {
	switch k {
	case ReasonUnexpectedGenesisAccountSignature:
		return "unexpected genesis account signature"
	case ReasonSignatureVerification:
		return "signature verification"
	case ReasonUnsatisfiedSignatureCondition:
		return "unsatisfied signature condition"
	case ReasonInstructionExecution:
		return "instruction execution"
	case ReasonNotPermitted:
		return "not permitted"
	default:
		return "unknown rejection"
	}
}

// MarshalJSON encodes the kind as its name rather than its ordinal, so a
// rejection reason reads the same on the wire as it prints in logs.
func (k RejectionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a rejection-kind name back to its ordinal.
func (k *RejectionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, candidate := range []RejectionKind{
		ReasonUnexpectedGenesisAccountSignature,
		ReasonSignatureVerification,
		ReasonUnsatisfiedSignatureCondition,
		ReasonInstructionExecution,
		ReasonNotPermitted,
	} {
		if candidate.String() == s {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("tx: unknown rejection kind %q", s)
}

// RejectionReason carries the taxonomy kind plus whatever detail applies to
// it. Only the fields relevant to Kind are populated.
type RejectionReason struct {
	Kind Kind `json:"kind"`
	// InstructionIndex is set for ReasonInstructionExecution: which
	// instruction (0-based) in Payload.Instructions failed.
	InstructionIndex int `json:"instruction_index,omitempty"`
	// Detail is the underlying error string: the signature-verification
	// failure, the execution error, the permission denial reason, or the
	// signature-condition error.
	Detail string `json:"detail"`
}

// Kind is an alias so call sites can write tx.RejectionReason{Kind:
// tx.ReasonNotPermitted, ...} without stutter.
type Kind = RejectionKind

func (r RejectionReason) Error() string {
	if r.Kind == ReasonInstructionExecution {
		return fmt.Sprintf("%s (instruction %d): %s", r.Kind, r.InstructionIndex, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}
