// Package block implements the versioned block envelope: a header covering
// height, ancestry and a transactions merkle root, a payload adding the
// commit topology, the committed transactions and event recommendations,
// and peer signatures over that payload. Decoding a SignedBlock re-derives
// the merkle root and rejects an empty block or a mismatched root before
// the SignedBlock is returned.
package block

import (
	"time"

	"github.com/tolchain/consensuscore/crypto"
)

// BlockHeader is the metadata that gets merkle-rooted and, via BlockPayload,
// signed. PreviousBlockHash is nil exactly for height 1 (genesis);
// TransactionsHash is nil exactly when there are no transactions — which
// SignedBlock decode rejects (see candidate.go).
type BlockHeader struct {
	Height                uint64                               `json:"height"`
	PreviousBlockHash     *crypto.Hash[SignedBlock]            `json:"previous_block_hash,omitempty"`
	TransactionsHash      *crypto.Hash[TransactionsMerkleRoot] `json:"transactions_hash,omitempty"`
	TimestampMs           uint64                               `json:"timestamp_ms"`
	ViewChangeIndex       uint64                               `json:"view_change_index"`
	ConsensusEstimationMs uint64                               `json:"consensus_estimation_ms"`
}

// IsGenesis reports whether h is the header of the first block in the chain.
func (h BlockHeader) IsGenesis() bool {
	return h.Height == 1
}

// Timestamp returns the header's creation time.
func (h BlockHeader) Timestamp() time.Time {
	return time.UnixMilli(int64(h.TimestampMs))
}

// CanonicalBytes implements crypto.Encodable.
func (h BlockHeader) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.Uint64(h.Height)
	e.OptionalBytes(h.PreviousBlockHash != nil, optionalHashBytes(h.PreviousBlockHash))
	e.OptionalBytes(h.TransactionsHash != nil, optionalMerkleBytes(h.TransactionsHash))
	e.Uint64(h.TimestampMs)
	e.Uint64(h.ViewChangeIndex)
	e.Uint64(h.ConsensusEstimationMs)
	return e.Out()
}

func optionalHashBytes(h *crypto.Hash[SignedBlock]) []byte {
	if h == nil {
		return nil
	}
	return h.Bytes()
}

func optionalMerkleBytes(h *crypto.Hash[TransactionsMerkleRoot]) []byte {
	if h == nil {
		return nil
	}
	return h.Bytes()
}
