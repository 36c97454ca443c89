package poa

import (
	"testing"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/consensus/viewchange"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/events"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

type memStore struct {
	byHash   map[string]block.SignedBlock
	byHeight map[uint64]string
	tip      string
}

func newMemStore() *memStore {
	return &memStore{byHash: map[string]block.SignedBlock{}, byHeight: map[uint64]string{}}
}

func (s *memStore) GetBlock(hashHex string) (block.SignedBlock, error) {
	b, ok := s.byHash[hashHex]
	if !ok {
		return block.SignedBlock{}, ErrNotFound
	}
	return b, nil
}

func (s *memStore) GetBlockByHeight(height uint64) (block.SignedBlock, error) {
	hash, ok := s.byHeight[height]
	if !ok {
		return block.SignedBlock{}, ErrNotFound
	}
	return s.GetBlock(hash)
}

func (s *memStore) GetTip() (string, error) { return s.tip, nil }

func (s *memStore) CommitBlock(b block.SignedBlock) error {
	hash := b.Hash().Hex()
	s.byHash[hash] = b
	s.byHeight[b.Header().Height] = hash
	s.tip = hash
	return nil
}

type passValidator struct{}

func (passValidator) CheckInstruction(account string, instr wsv.Instruction, original wsv.WorldStateView) error {
	return nil
}

func newSignedTx(t *testing.T, account, to string, amount uint64) tx.Accepted {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	txn := tx.Transaction{
		Payload: tx.Payload{
			Account:      account,
			Instructions: []wsv.Instruction{wsv.TransferInstruction{To: to, Amount: amount}},
			CreatedAtMs:  nowMs(),
			TimeToLiveMs: 600_000,
		},
	}
	txn.Sign(priv)
	accepted, err := tx.Accept(txn, 10)
	if err != nil {
		t.Fatal(err)
	}
	return accepted
}

func newEngine(t *testing.T, n int, nodePos uint64) (*PoA, []crypto.PrivateKey, *memStore) {
	t.Helper()
	peers := make([]topology.PeerId, n)
	keys := make([]crypto.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		peers[i] = topology.PeerId{Address: "peer", PublicKey: pub}
		keys[i] = priv
	}
	top := topology.New(peers)
	store := newMemStore()
	chain := NewChain(store)
	if err := chain.Init(); err != nil {
		t.Fatal(err)
	}
	w := wsv.NewMemoryWSV()
	w.SetAccount(wsv.Account{Address: "alice", Balance: 100})
	var vc viewchange.ProofChain
	p := New(top, chain, NewMempool(), w, passValidator{}, events.NewEmitter(), &vc, keys[nodePos], nodePos, "genesis")
	return p, keys, store
}

func TestProposerRotation(t *testing.T) {
	n := 4
	for height := uint64(1); height <= uint64(n)*2; height++ {
		pos := proposerPos(topology.New(make([]topology.PeerId, n)), height, 0)
		if pos >= uint64(n) {
			t.Fatalf("proposerPos(%d) = %d, out of range for n=%d", height, pos, n)
		}
	}
	// Round-robin: height 1 and height 1+n should land on the same position.
	top := topology.New(make([]topology.PeerId, n))
	if proposerPos(top, 1, 0) != proposerPos(top, 1+uint64(n), 0) {
		t.Error("proposer rotation should repeat every n heights")
	}
}

func TestViewChangeShiftsProposer(t *testing.T) {
	top := topology.New(make([]topology.PeerId, 4))
	base := proposerPos(top, 5, 0)
	shifted := proposerPos(top, 5, 1)
	if base == shifted {
		t.Error("a completed view change should shift the proposer position")
	}
}

func TestProposeBlockRequiresProposerTurn(t *testing.T) {
	p, _, _ := newEngine(t, 4, 0)
	// Find a node position that is NOT the proposer for height 1.
	notProposer := proposerPos(p.Top, 1, 0) + 1
	p.NodePos = notProposer % uint64(p.Top.Len())
	if _, err := p.ProposeBlock(); err == nil {
		t.Error("expected an error when proposing out of turn")
	}
}

func TestProposeBlockRejectsEmptyMempool(t *testing.T) {
	proposerNodePos := proposerPos(topology.New(make([]topology.PeerId, 4)), 1, 0)
	p, _, _ := newEngine(t, 4, proposerNodePos)
	if _, err := p.ProposeBlock(); err == nil {
		t.Error("expected an error proposing with no pending transactions")
	}
}

func TestProposeValidateCommitRoundTrip(t *testing.T) {
	n := 4
	proposerNodePos := proposerPos(topology.New(make([]topology.PeerId, n)), 1, 0)
	p, keys, _ := newEngine(t, n, proposerNodePos)

	accepted := newSignedTx(t, "alice", "bob", 10)
	if err := p.Mempool.Add(accepted); err != nil {
		t.Fatal(err)
	}

	candidate, err := p.ProposeBlock()
	if err != nil {
		t.Fatalf("ProposeBlock: %v", err)
	}
	if err := p.ValidateCandidate(candidate); err != nil {
		t.Fatalf("ValidateCandidate: %v", err)
	}

	// Gather co-signatures from the other nodes to reach commit quorum.
	for i, priv := range keys {
		pos := uint64(i)
		if pos == proposerNodePos {
			continue
		}
		candidate = candidate.Sign(priv, pos)
		if candidate.HasQuorum(p.Top) {
			break
		}
	}
	if !candidate.HasQuorum(p.Top) {
		t.Fatal("candidate should have reached commit quorum")
	}

	if err := p.Commit(candidate); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if p.Chain.Height() != 1 {
		t.Errorf("Chain.Height() = %d, want 1", p.Chain.Height())
	}
	if p.Mempool.Size() != 0 {
		t.Errorf("Mempool.Size() = %d, want 0 after commit", p.Mempool.Size())
	}
}

func TestCommitRejectsBelowQuorum(t *testing.T) {
	n := 4
	proposerNodePos := proposerPos(topology.New(make([]topology.PeerId, n)), 1, 0)
	p, _, _ := newEngine(t, n, proposerNodePos)

	accepted := newSignedTx(t, "alice", "bob", 10)
	if err := p.Mempool.Add(accepted); err != nil {
		t.Fatal(err)
	}
	candidate, err := p.ProposeBlock()
	if err != nil {
		t.Fatalf("ProposeBlock: %v", err)
	}
	if err := p.Commit(candidate); err == nil {
		t.Error("expected Commit to reject a candidate below commit quorum")
	}
}
