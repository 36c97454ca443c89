package block

import (
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/tx"
)

// TransactionsMerkleRoot is the domain tag for BlockHeader.TransactionsHash.
// It is distinct from crypto.Hash[tx.Payload] even though the bytes are
// computed the same way (SHA-256), so the two can never be mixed up at
// compile time.
type TransactionsMerkleRoot struct{}

// MerkleRootOf computes the pairwise merkle root over txs' payload hashes,
// duplicating the last leaf of a level when that level has odd length. An
// empty input yields the zero hash; callers must not treat that as meaning
// "no transactions" on the wire — candidate decode represents that with a
// nil *Hash, not the zero value (see header.go, candidate.go).
func MerkleRootOf(txs []tx.Value) crypto.Hash[TransactionsMerkleRoot] {
	if len(txs) == 0 {
		return crypto.Hash[TransactionsMerkleRoot]{}
	}
	leaves := make([]crypto.Hash[tx.Payload], len(txs))
	for i, v := range txs {
		leaves[i] = v.Hash()
	}
	root := reduceLevel(leaves)
	return crypto.Hash[TransactionsMerkleRoot](root)
}

func reduceLevel(level []crypto.Hash[tx.Payload]) crypto.Hash[tx.Payload] {
	if len(level) == 1 {
		return level[0]
	}
	next := make([]crypto.Hash[tx.Payload], 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, crypto.CombinePair(level[i], level[i+1]))
		} else {
			next = append(next, crypto.CombinePair(level[i], level[i]))
		}
	}
	return reduceLevel(next)
}
