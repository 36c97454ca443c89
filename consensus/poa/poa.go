// Package poa implements the block-production and block-validation loop:
// proposer rotation over the commit topology, taking pending mempool
// transactions into a candidate block, and verifying/committing a candidate once it carries the
// commit quorum's worth of signatures. The view-change proof engine
// (consensus/viewchange) is consulted to decide how far to rotate the
// proposer position forward when the current proposer has gone quiet.
// Grounded on the teacher's consensus.PoA (round-robin proposer selection,
// sign-then-commit block production, the IsProposer/ProduceBlock/
// ValidateBlock/Run shape).
package poa

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/consensus/viewchange"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/events"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

// maxBlockTimeDrift bounds how far a candidate block's timestamp may sit
// ahead of the validator's local clock.
const maxBlockTimeDrift = 15 * time.Second

// DefaultMaxBlockTxs caps how many pending transactions ProposeBlock will
// take from the mempool into a single candidate.
const DefaultMaxBlockTxs = 500

// DefaultMaxInstructions is the per-transaction instruction-count ceiling
// passed to tx.Accept.
const DefaultMaxInstructions = 100

// PoA is the proof-of-authority engine for one local validator: it knows its
// own node position in the commit topology, proposes blocks on its turn,
// and validates/commits candidates proposed by others.
type PoA struct {
	Top            topology.Topology
	Chain          *Chain
	Mempool        *Mempool
	WSV            wsv.WorldStateView
	Perm           wsv.PermissionValidator
	Emitter        *events.Emitter
	ViewChanges    *viewchange.ProofChain
	PrivKey        crypto.PrivateKey
	NodePos        uint64
	GenesisAccount string
	MaxBlockTxs    int
	MaxInstr       int
}

// New creates a PoA engine for the local validator at nodePos in top.
func New(
	top topology.Topology,
	chain *Chain,
	mempool *Mempool,
	w wsv.WorldStateView,
	perm wsv.PermissionValidator,
	emitter *events.Emitter,
	vc *viewchange.ProofChain,
	privKey crypto.PrivateKey,
	nodePos uint64,
	genesisAccount string,
) *PoA {
	return &PoA{
		Top:            top,
		Chain:          chain,
		Mempool:        mempool,
		WSV:            w,
		Perm:           perm,
		Emitter:        emitter,
		ViewChanges:    vc,
		PrivKey:        privKey,
		NodePos:        nodePos,
		GenesisAccount: genesisAccount,
		MaxBlockTxs:    DefaultMaxBlockTxs,
		MaxInstr:       DefaultMaxInstructions,
	}
}

// viewChangeIndex is how many view changes have completed for the block
// currently being produced: the length of the longest quorate prefix of
// ViewChanges, consulted so the proposer rotation skips forward past peers
// the network has already agreed are unresponsive.
func (p *PoA) viewChangeIndex() uint64 {
	if p.ViewChanges == nil {
		return 0
	}
	return uint64(p.ViewChanges.VerifyWithState(p.Top, p.Chain.TipHash()))
}

// proposerPos returns the node position expected to propose the block at
// height, given viewChangeIndex completed view changes since the last
// commit: round-robin over the topology, shifted forward by each view
// change so a faulty proposer's turn is skipped rather than stalling.
func proposerPos(top topology.Topology, height, viewChangeIndex uint64) uint64 {
	n := uint64(top.Len())
	if n == 0 {
		return 0
	}
	return (height + viewChangeIndex) % n
}

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	if p.Top.Len() == 0 {
		return false
	}
	nextHeight := p.Chain.Height() + 1
	return proposerPos(p.Top, nextHeight, p.viewChangeIndex()) == p.NodePos
}

// nowMs is overridable in tests; production code always uses wall-clock time.
var nowMs = func() uint64 { return uint64(time.Now().UnixMilli()) }

// ProposeBlock reads the mempool's pending transactions, validates each one
// against a clone of the current world-state (chaining each valid
// transaction's effects into the next), and returns a self-signed candidate
// block ready to broadcast for co-signing. It does not touch Chain or
// Mempool — commitment only happens once the candidate reaches quorum (see
// Commit).
func (p *PoA) ProposeBlock() (block.SignedBlock, error) {
	if !p.IsProposer() {
		return block.SignedBlock{}, errors.New("poa: not the proposer for this round")
	}

	limit := p.MaxBlockTxs
	if limit <= 0 {
		limit = DefaultMaxBlockTxs
	}
	now := nowMs()
	accepted := p.Mempool.Pending(limit, now)

	values := make([]tx.Value, 0, len(accepted))
	state := p.WSV.Clone()
	for _, a := range accepted {
		value, err := a.Validate(state, p.Perm, nil, false, p.GenesisAccount)
		if err != nil {
			values = append(values, value)
			continue
		}
		valid := *value.Valid
		next, err := valid.Proceed(state)
		if err != nil {
			values = append(values, tx.NewRejectedValue(valid.Reject(tx.RejectionReason{
				Kind:   tx.ReasonInstructionExecution,
				Detail: err.Error(),
			})))
			continue
		}
		state = next
		values = append(values, tx.NewValidValue(valid))
	}

	if len(values) == 0 {
		return block.SignedBlock{}, errors.New("poa: no pending transactions to propose")
	}

	root := block.MerkleRootOf(values)
	header := block.BlockHeader{
		Height:                p.Chain.Height() + 1,
		PreviousBlockHash:     p.Chain.TipHash(),
		TransactionsHash:      &root,
		TimestampMs:           now,
		ViewChangeIndex:       p.viewChangeIndex(),
		ConsensusEstimationMs: uint64(2 * time.Second / time.Millisecond),
	}
	payload := block.BlockPayload{
		Header:         header,
		CommitTopology: p.Top.Peers,
		Transactions:   values,
	}
	return block.NewSignedBlockV1(payload).Sign(p.PrivKey, p.NodePos), nil
}

// ValidateCandidate checks that candidate was proposed by the expected
// proposer for its height and that its header is internally consistent with
// the local chain tip. It does not check commit quorum (see Commit) — this
// is the check a co-signer runs before adding its own signature.
func (p *PoA) ValidateCandidate(candidate block.SignedBlock) error {
	if p.Top.Len() == 0 {
		return errors.New("poa: no peers configured")
	}

	header := candidate.Header()
	expected := proposerPos(p.Top, header.Height, header.ViewChangeIndex)
	proposed := false
	for _, sig := range candidate.Signatures() {
		if sig.NodePos == expected {
			proposed = true
			break
		}
	}
	if !proposed {
		return fmt.Errorf("poa: candidate at height %d missing expected proposer %d's signature", header.Height, expected)
	}
	if err := candidate.VerifySignatures(p.Top); err != nil {
		return fmt.Errorf("poa: signature invalid: %w", err)
	}

	now := nowMs()
	if header.TimestampMs > now+uint64(maxBlockTimeDrift.Milliseconds()) {
		return fmt.Errorf("poa: block timestamp too far in future: %d (now %d)", header.TimestampMs, now)
	}

	tip := p.Chain.Tip()
	if tip == nil {
		if header.Height != 1 {
			return fmt.Errorf("poa: first block must be height 1, got %d", header.Height)
		}
		if header.PreviousBlockHash != nil {
			return errors.New("poa: genesis block must not reference a previous block hash")
		}
	} else {
		tipHeader := tip.Header()
		if header.Height != tipHeader.Height+1 {
			return fmt.Errorf("poa: height mismatch: got %d want %d", header.Height, tipHeader.Height+1)
		}
		tipHash := tip.Hash()
		if header.PreviousBlockHash == nil || *header.PreviousBlockHash != tipHash {
			return errors.New("poa: previous_block_hash mismatch")
		}
		if header.TimestampMs < tipHeader.TimestampMs {
			return fmt.Errorf("poa: block timestamp %d < previous block %d", header.TimestampMs, tipHeader.TimestampMs)
		}
	}
	return nil
}

// Commit verifies that candidate carries the commit quorum's worth of valid
// signatures, appends it to the chain, drains its committed transactions
// from the mempool, and emits the resulting events.
func (p *PoA) Commit(candidate block.SignedBlock) error {
	if err := candidate.VerifySignatures(p.Top); err != nil {
		return fmt.Errorf("poa: signature invalid: %w", err)
	}
	if !candidate.HasQuorum(p.Top) {
		return fmt.Errorf("poa: candidate lacks commit quorum of %d", p.Top.Quorum(topology.QuorumCommit))
	}
	if err := p.Chain.AddBlock(candidate); err != nil {
		return fmt.Errorf("poa: add block: %w", err)
	}

	committed := make([]string, 0, len(candidate.Transactions()))
	for _, v := range candidate.Transactions() {
		hash := v.Hash().Hex()
		committed = append(committed, hash)
		if v.Valid != nil {
			p.Emitter.Emit(events.Event{Type: events.EventTxCommitted, TxHash: hash, BlockHeight: candidate.Header().Height})
		} else {
			p.Emitter.Emit(events.Event{Type: events.EventTxRejected, TxHash: hash, BlockHeight: candidate.Header().Height})
		}
	}
	p.Mempool.Remove(committed)

	p.Emitter.Emit(events.Event{
		Type:        events.EventBlockCommitted,
		BlockHeight: candidate.Header().Height,
		Data:        map[string]any{"hash": candidate.Hash().Hex(), "txs": len(committed)},
	})
	return nil
}

// Run ticks every interval, proposing a block whenever this node is the
// current proposer. It blocks until done is closed. Gathering co-signatures
// and calling Commit once quorum is reached is the caller's/network layer's
// responsibility — Run only drives proposal timing.
func (p *PoA) Run(interval time.Duration, propose func(block.SignedBlock), done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			candidate, err := p.ProposeBlock()
			if err != nil {
				log.Printf("[poa] propose block error: %v", err)
				continue
			}
			propose(candidate)
		}
	}
}
