package block

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyBlock is returned by candidate decode when a block carries no
// transactions, genesis included — every block, genesis or not, must carry
// at least one transaction.
var ErrEmptyBlock = errors.New("block is empty")

// ErrTransactionsHashMismatch is returned by candidate decode when the
// header's TransactionsHash does not match the merkle root re-derived from
// the payload's transactions.
var ErrTransactionsHashMismatch = errors.New("transactions' hash incorrect")

func errOutOfRangeNodePos(pos uint64) error {
	return fmt.Errorf("block: node position %d out of range for topology", pos)
}

// MarshalJSON encodes b's underlying V1 envelope directly — there is
// nothing to validate on the way out, only on the way in.
func (b SignedBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.v1)
}

// UnmarshalJSON decodes a block candidate and validates it before accepting
// it as a SignedBlock: the header's TransactionsHash must match the merkle
// root re-derived from the payload's transactions, and the block must carry
// at least one transaction. This mirrors the original implementation's
// SignedBlockCandidate::validate, run on every decode path rather than
// trusted once at construction (spec.md §6).
func (b *SignedBlock) UnmarshalJSON(data []byte) error {
	var v1 SignedBlockV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return err
	}
	if err := validateCandidate(v1); err != nil {
		return err
	}
	b.Version = V1
	b.v1 = &v1
	return nil
}

func validateCandidate(v1 SignedBlockV1) error {
	if len(v1.Payload.Transactions) == 0 {
		return ErrEmptyBlock
	}
	expected := MerkleRootOf(v1.Payload.Transactions)
	if v1.Payload.Header.TransactionsHash == nil || *v1.Payload.Header.TransactionsHash != expected {
		return ErrTransactionsHashMismatch
	}
	// Event recommendations are not independently re-derivable from the
	// payload and are not checked here; block application does not check
	// them either.
	return nil
}
