package config

import (
	"fmt"
	"sort"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

// GenesisAccount is the account id the genesis transaction signs as — a
// reserved identity trusted once, at height 1, to mint the chain's initial
// account balances, the way Iroha reserves a genesis account for the same
// purpose.
const GenesisAccount = "genesis"

// CreateGenesisBlock builds, validates, and signs the height-1 block that
// anchors the chain: a single genesis transaction minting every allocation
// in cfg.Genesis.Alloc into state, executed and embedded the same way any
// later transaction would be (tx.Accept then Accepted.Validate with
// isGenesis=true to relax the genesis-account guard and skip permission
// checks). Like every later block, genesis must carry at least one
// transaction — the candidate decode path rejects empty blocks
// unconditionally (see block.ErrEmptyBlock) — so allocations ride along as
// a real MintInstruction-carrying transaction rather than being
// side-loaded into state outside the transaction lifecycle.
func CreateGenesisBlock(cfg *Config, state wsv.WorldStateView, proposerPriv crypto.PrivateKey, nodePos uint64) (block.SignedBlock, error) {
	top, err := cfg.Topology()
	if err != nil {
		return block.SignedBlock{}, err
	}

	pubkeys := make([]string, 0, len(cfg.Genesis.Alloc))
	for pubkeyHex := range cfg.Genesis.Alloc {
		pubkeys = append(pubkeys, pubkeyHex)
	}
	sort.Strings(pubkeys)

	instructions := make([]wsv.Instruction, 0, len(pubkeys))
	for _, pubkeyHex := range pubkeys {
		instructions = append(instructions, wsv.MintInstruction{To: pubkeyHex, Amount: cfg.Genesis.Alloc[pubkeyHex]})
	}
	if len(instructions) == 0 {
		return block.SignedBlock{}, fmt.Errorf("config: genesis.alloc must allocate at least one account")
	}

	txn := tx.Transaction{
		Payload: tx.Payload{
			Account:      GenesisAccount,
			Instructions: instructions,
			CreatedAtMs:  genesisTimestampMs(cfg),
			TimeToLiveMs: 60_000,
		},
	}
	txn.Sign(proposerPriv)

	accepted, err := tx.Accept(txn, len(instructions))
	if err != nil {
		return block.SignedBlock{}, fmt.Errorf("config: accepting genesis transaction: %w", err)
	}
	value, err := accepted.Validate(state, nil, nil, true, GenesisAccount)
	if err != nil {
		return block.SignedBlock{}, fmt.Errorf("config: validating genesis transaction: %w", err)
	}
	// Validate only checks the instructions against a throwaway clone
	// (spec.md §4.4's "validate" stage never mutates the state it's handed);
	// genesis is the one transaction trusted unconditionally, so apply the
	// same instructions directly to the caller's state here rather than
	// requiring a separate Proceed step the caller would have to know to run.
	for i, instr := range instructions {
		if err := instr.Execute(GenesisAccount, state); err != nil {
			return block.SignedBlock{}, fmt.Errorf("config: applying genesis instruction %d: %w", i, err)
		}
	}

	root := block.MerkleRootOf([]tx.Value{value})
	header := block.BlockHeader{
		Height:           1,
		TransactionsHash: &root,
		TimestampMs:      genesisTimestampMs(cfg),
	}
	payload := block.BlockPayload{
		Header:         header,
		CommitTopology: top.Peers,
		Transactions:   []tx.Value{value},
	}
	return block.NewSignedBlockV1(payload).Sign(proposerPriv, nodePos), nil
}

// genesisTimestampMs is overridable by tests; production callers get a
// fixed value (0) rather than wall-clock time so two
// nodes building genesis independently from the same config agree byte for
// byte.
var genesisTimestampMs = func(cfg *Config) uint64 {
	return 0
}

// IsGenesisBlock reports whether b is the chain's first block.
func IsGenesisBlock(b block.SignedBlock) bool {
	return b.Header().IsGenesis()
}
