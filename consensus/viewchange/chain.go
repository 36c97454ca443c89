package viewchange

import (
	"errors"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
)

// ErrBlockHashMismatch is returned when a proof's LatestBlockHash does not
// match the chain's own view of the latest committed block.
var ErrBlockHashMismatch = errors.New("viewchange: block hash mismatch")

// ErrViewChangeNotFound is returned when a proof or chain argues for a
// view-change round that is not the chain's next unfinished one.
var ErrViewChangeNotFound = errors.New("viewchange: view change not found")

// ProofChain is an ordered sequence of view-change proofs, one per round:
// index 0 argues for the first view change since the last commit, index 1
// for the second, and so on. A chain is only ever extended at its next
// unfinished index; earlier entries are either already-quorate or invalid.
type ProofChain []SignedProof

// VerifyWithState returns how many proofs at the front of the chain are
// internally consistent — same LatestBlockHash as latestBlockHash, in
// index order, individually valid — stopping at the first one that isn't.
// The returned count is also the index of the next unfinished view change.
func (c ProofChain) VerifyWithState(top topology.Topology, latestBlockHash *crypto.Hash[block.SignedBlock]) int {
	count := 0
	for i, proof := range c {
		if !sameLatestBlockHash(proof.Payload.LatestBlockHash, latestBlockHash) {
			break
		}
		if proof.Payload.ViewChangeIndex != uint64(i) {
			break
		}
		if !proof.Verify(top) {
			break
		}
		count++
	}
	return count
}

// Prune truncates the chain to the longest consistent prefix for
// latestBlockHash, without checking signature validity — used before
// merging in a peer's chain, since their signatures still need re-checking
// against our own topology.
func (c *ProofChain) Prune(latestBlockHash *crypto.Hash[block.SignedBlock]) {
	count := 0
	for i, proof := range *c {
		if !sameLatestBlockHash(proof.Payload.LatestBlockHash, latestBlockHash) {
			break
		}
		if proof.Payload.ViewChangeIndex != uint64(i) {
			break
		}
		count++
	}
	*c = (*c)[:count]
}

// InsertProof attempts to fold newProof into the chain: if it argues for the
// chain's next unfinished view change, its signatures are merged into the
// existing proof at that index (or the proof is appended if the chain isn't
// that long yet). Any other view-change index is rejected — a peer only
// cares about the round it's currently waiting on.
func (c *ProofChain) InsertProof(newProof SignedProof, top topology.Topology, latestBlockHash *crypto.Hash[block.SignedBlock]) error {
	if !sameLatestBlockHash(newProof.Payload.LatestBlockHash, latestBlockHash) {
		return ErrBlockHashMismatch
	}

	next := c.VerifyWithState(top, latestBlockHash)
	if newProof.Payload.ViewChangeIndex != uint64(next) {
		return ErrViewChangeNotFound
	}

	if next < len(*c) {
		(*c)[next].MergeSignatures(newProof.Signatures, top)
	} else {
		*c = append(*c, newProof)
	}
	return nil
}

// Merge folds the latest usable proof out of other into c, after pruning
// other to the prefix that's consistent with latestBlockHash. Mirrors the
// original's four-case merge: fill in signatures for an incomplete round,
// append a genuinely new round, or report that other is behind (can't help)
// or has nothing new (a no-op).
func (c *ProofChain) Merge(other ProofChain, top topology.Topology, latestBlockHash *crypto.Hash[block.SignedBlock]) error {
	other.Prune(latestBlockHash)
	if len(other) == 0 {
		return ErrBlockHashMismatch
	}

	next := c.VerifyWithState(top, latestBlockHash)
	chainIncomplete := next < len(*c)
	otherHasMore := next < len(other)

	switch {
	case chainIncomplete && otherHasMore:
		(*c)[next].MergeSignatures(other[next].Signatures, top)
	case !chainIncomplete && otherHasMore:
		*c = append(*c, other[next])
	case chainIncomplete && !otherHasMore:
		return ErrViewChangeNotFound
	default:
		// Chain is complete and other has nothing past it: normal, not an error.
	}
	return nil
}
