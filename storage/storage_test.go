package storage

import (
	"testing"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

func openTestDB(t *testing.T) *LevelDB {
	t.Helper()
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewLevelDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func signedGenesis(t *testing.T) block.SignedBlock {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	top := topology.New([]topology.PeerId{{Address: "p0", PublicKey: pub}})
	txs := []tx.Value{mintValue(t, priv, pub.Hex())}
	root := block.MerkleRootOf(txs)
	payload := block.BlockPayload{
		Header:         block.BlockHeader{Height: 1, TransactionsHash: &root, TimestampMs: 1},
		CommitTopology: top.Peers,
		Transactions:   txs,
	}
	return block.NewSignedBlockV1(payload).Sign(priv, 0)
}

// mintValue returns a validated single-mint transaction, since block decode
// rejects a block that carries no transactions.
func mintValue(t *testing.T, priv crypto.PrivateKey, to string) tx.Value {
	t.Helper()
	txn := tx.Transaction{Payload: tx.Payload{
		Account:      "genesis",
		Instructions: []wsv.Instruction{wsv.MintInstruction{To: to, Amount: 1}},
	}}
	txn.Sign(priv)
	accepted, err := tx.Accept(txn, 1)
	if err != nil {
		t.Fatal(err)
	}
	value, err := accepted.Validate(wsv.NewMemoryWSV(), nil, nil, true, "genesis")
	if err != nil {
		t.Fatal(err)
	}
	return value
}

func TestLevelBlockStoreCommitAndLookup(t *testing.T) {
	store := NewLevelBlockStore(openTestDB(t))

	if _, err := store.GetBlock("deadbeef"); err != ErrNotFound {
		t.Fatalf("GetBlock on empty store: err = %v, want ErrNotFound", err)
	}
	if tip, err := store.GetTip(); err != nil || tip != "" {
		t.Fatalf("GetTip on empty store = %q, %v, want \"\", nil", tip, err)
	}

	b := signedGenesis(t)
	if err := store.CommitBlock(b); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	hash := b.Hash().Hex()
	got, err := store.GetBlock(hash)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Hash() != b.Hash() {
		t.Error("GetBlock returned a different block than was committed")
	}

	byHeight, err := store.GetBlockByHeight(1)
	if err != nil {
		t.Fatalf("GetBlockByHeight: %v", err)
	}
	if byHeight.Hash() != b.Hash() {
		t.Error("GetBlockByHeight returned a different block than was committed")
	}

	tip, err := store.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if tip != hash {
		t.Errorf("GetTip = %q, want %q", tip, hash)
	}
}

func TestStateDBSetAccountRequiresCommitToPersist(t *testing.T) {
	db := openTestDB(t)
	s := NewStateDB(db)

	s.SetAccount(wsv.Account{Address: "alice", Balance: 100})
	acc, ok := s.Account("alice")
	if !ok || acc.Balance != 100 {
		t.Fatalf("Account before commit = %+v, %v, want balance 100", acc, ok)
	}

	s2 := NewStateDB(db)
	if _, ok := s2.Account("alice"); ok {
		t.Fatal("uncommitted write should not be visible to a second StateDB over the same db")
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	acc, ok = s2.Account("alice")
	if !ok || acc.Balance != 100 {
		t.Fatalf("Account after commit = %+v, %v, want balance 100", acc, ok)
	}
}

func TestStateDBSnapshotRevert(t *testing.T) {
	s := NewStateDB(openTestDB(t))
	s.SetAccount(wsv.Account{Address: "alice", Balance: 100})

	snap := s.Snapshot()
	s.SetAccount(wsv.Account{Address: "alice", Balance: 50})
	if acc, _ := s.Account("alice"); acc.Balance != 50 {
		t.Fatalf("balance after spend = %d, want 50", acc.Balance)
	}

	if err := s.RevertToSnapshot(snap); err != nil {
		t.Fatalf("RevertToSnapshot: %v", err)
	}
	if acc, _ := s.Account("alice"); acc.Balance != 100 {
		t.Fatalf("balance after revert = %d, want 100", acc.Balance)
	}
}

func TestStateDBComputeRootChangesWithState(t *testing.T) {
	s := NewStateDB(openTestDB(t))
	empty := s.ComputeRoot()

	s.SetAccount(wsv.Account{Address: "alice", Balance: 100})
	withAlice := s.ComputeRoot()
	if empty == withAlice {
		t.Error("ComputeRoot should change once an account is written")
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	afterCommit := s.ComputeRoot()
	if afterCommit != withAlice {
		t.Error("ComputeRoot should be unaffected by flushing the same state via Commit")
	}
}

func TestStateDBMarkCommittedTracksTxHash(t *testing.T) {
	s := NewStateDB(openTestDB(t))
	if s.ContainsTx("abc") {
		t.Fatal("unrecorded tx hash should not be contained")
	}
	s.MarkCommitted("abc")
	if !s.ContainsTx("abc") {
		t.Fatal("recorded tx hash should be contained before commit")
	}
}

func TestStateDBCloneIsIndependent(t *testing.T) {
	s := NewStateDB(openTestDB(t))
	s.SetAccount(wsv.Account{Address: "alice", Balance: 100})

	clone := s.Clone().(*StateDB)
	clone.SetAccount(wsv.Account{Address: "alice", Balance: 1})

	orig, _ := s.Account("alice")
	if orig.Balance != 100 {
		t.Errorf("original balance mutated by clone write: got %d, want 100", orig.Balance)
	}
}
