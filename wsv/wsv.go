// Package wsv declares the external collaborators the transaction
// lifecycle validates against: the world-state-view that instructions
// mutate, and the permission validator instructions are checked against.
// Both are interfaces only — their concrete implementation (durable
// storage layout, instruction language semantics) is out of scope for the
// consensus core, per spec.md §1. This package also provides a small
// in-memory reference implementation used by tests across the module.
package wsv

import "github.com/tolchain/consensuscore/crypto"

// WorldStateView is the in-memory projection of ledger state instructions
// execute against. Implementations must be cheaply cloneable: the
// transaction lifecycle executes every transaction against a clone and only
// commits the clone back on success (spec.md §4.4).
type WorldStateView interface {
	// Clone returns an independent copy; mutations to the clone must never
	// be visible through the original.
	Clone() WorldStateView
	// ContainsTx reports whether a transaction with the given hash (hex
	// encoded) has already been committed to this state.
	ContainsTx(hashHex string) bool
}

// Instruction is one step of a transaction's instruction list. Execute
// mutates w in place; CanonicalBytes makes it hashable/signable as part of
// the enclosing transaction payload. The instruction language itself is
// out of scope (spec.md §1 non-goals) — this interface is the seam a real
// instruction set plugs into.
type Instruction interface {
	crypto.Encodable
	// Tag identifies the instruction's concrete type for wire encoding;
	// the InstructionRegistry maps it back to a decoder on the way in.
	Tag() string
	Execute(account string, w WorldStateView) error
}

// PermissionValidator decides whether account is permitted to run instr
// given the (unmutated) state original. Checked only for non-genesis
// transactions (spec.md §4.4 step 4b).
type PermissionValidator interface {
	CheckInstruction(account string, instr Instruction, original WorldStateView) error
}
