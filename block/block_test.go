package block

import (
	"encoding/json"
	"testing"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

func committedValue(t *testing.T, account, to string, amount uint64) tx.Value {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	txn := tx.Transaction{
		Payload: tx.Payload{
			Account:      account,
			Instructions: []wsv.Instruction{wsv.TransferInstruction{To: to, Amount: amount}},
			CreatedAtMs:  1,
			TimeToLiveMs: 60_000,
		},
	}
	txn.Sign(priv)
	accepted, err := tx.Accept(txn, 10)
	if err != nil {
		t.Fatal(err)
	}
	w := wsv.NewMemoryWSV()
	w.SetAccount(wsv.Account{Address: account, Balance: amount + 1})
	value, _ := accepted.Validate(w, passValidator{}, nil, false, "genesis")
	return value
}

type passValidator struct{}

func (passValidator) CheckInstruction(account string, instr wsv.Instruction, original wsv.WorldStateView) error {
	return nil
}

func buildPayload(t *testing.T, txs []tx.Value) BlockPayload {
	t.Helper()
	root := MerkleRootOf(txs)
	return BlockPayload{
		Header: BlockHeader{
			Height:                2,
			TransactionsHash:      &root,
			TimestampMs:           1,
			ConsensusEstimationMs: 2000,
		},
		CommitTopology: []topology.PeerId{{Address: "peer-0"}},
		Transactions:   txs,
	}
}

func TestMerkleRootOfIsOrderSensitive(t *testing.T) {
	a := committedValue(t, "alice", "bob", 1)
	b := committedValue(t, "carol", "dave", 2)

	r1 := MerkleRootOf([]tx.Value{a, b})
	r2 := MerkleRootOf([]tx.Value{b, a})
	if r1 == r2 {
		t.Error("merkle root should depend on transaction order")
	}
}

func TestMerkleRootOfOddCountDuplicatesLast(t *testing.T) {
	a := committedValue(t, "alice", "bob", 1)
	b := committedValue(t, "carol", "dave", 2)
	c := committedValue(t, "erin", "frank", 3)

	threeLeaf := MerkleRootOf([]tx.Value{a, b, c})
	fourLeaf := MerkleRootOf([]tx.Value{a, b, c, c})
	if threeLeaf != fourLeaf {
		t.Error("an odd leaf count should duplicate the last leaf to match the next even count")
	}
}

func TestSignAndVerifyQuorum(t *testing.T) {
	priv0, pub0, _ := crypto.GenerateKeyPair()
	priv1, pub1, _ := crypto.GenerateKeyPair()
	priv2, pub2, _ := crypto.GenerateKeyPair()
	_, pub3, _ := crypto.GenerateKeyPair()
	top := topology.New([]topology.PeerId{
		{Address: "p0", PublicKey: pub0},
		{Address: "p1", PublicKey: pub1},
		{Address: "p2", PublicKey: pub2},
		{Address: "p3", PublicKey: pub3},
	})

	txs := []tx.Value{committedValue(t, "alice", "bob", 1)}
	payload := buildPayload(t, txs)
	payload.CommitTopology = top.Peers

	b := NewSignedBlockV1(payload)
	if b.HasQuorum(top) {
		t.Fatal("an unsigned block must not report quorum")
	}

	b = b.Sign(priv0, 0)
	if b.HasQuorum(top) {
		t.Fatal("one signature is below the 4-peer commit quorum of 3")
	}
	b = b.Sign(priv1, 1)
	b = b.Sign(priv2, 2)
	if !b.HasQuorum(top) {
		t.Error("three signatures should satisfy a 4-peer commit quorum")
	}
	if err := b.VerifySignatures(top); err != nil {
		t.Errorf("VerifySignatures: %v", err)
	}
}

func TestVerifySignaturesRejectsOutOfRangeNodePos(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	top := topology.New([]topology.PeerId{{Address: "p0", PublicKey: pub}})

	txs := []tx.Value{committedValue(t, "alice", "bob", 1)}
	b := NewSignedBlockV1(buildPayload(t, txs)).Sign(priv, 7)
	if err := b.VerifySignatures(top); err == nil {
		t.Error("expected an out-of-range node position to fail verification")
	}
}

func TestCandidateRejectsEmptyBlock(t *testing.T) {
	payload := buildPayload(t, nil)
	data, err := json.Marshal(SignedBlockV1{Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	var b SignedBlock
	if err := json.Unmarshal(data, &b); err != ErrEmptyBlock {
		t.Errorf("UnmarshalJSON error = %v, want ErrEmptyBlock", err)
	}
}

func TestCandidateRejectsBadTransactionsHash(t *testing.T) {
	txs := []tx.Value{committedValue(t, "alice", "bob", 1)}
	payload := buildPayload(t, txs)
	bogus := MerkleRootOf([]tx.Value{committedValue(t, "zed", "yan", 9)})
	payload.Header.TransactionsHash = &bogus

	data, err := json.Marshal(SignedBlockV1{Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	var b SignedBlock
	if err := json.Unmarshal(data, &b); err != ErrTransactionsHashMismatch {
		t.Errorf("UnmarshalJSON error = %v, want ErrTransactionsHashMismatch", err)
	}
}

func TestCandidateAcceptsValidBlockAndRoundTrips(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	top := topology.New([]topology.PeerId{{Address: "p0", PublicKey: pub}})
	txs := []tx.Value{committedValue(t, "alice", "bob", 1)}
	payload := buildPayload(t, txs)
	payload.CommitTopology = top.Peers
	signed := NewSignedBlockV1(payload).Sign(priv, 0)

	data, err := json.Marshal(signed)
	if err != nil {
		t.Fatal(err)
	}
	var out SignedBlock
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if out.Hash() != signed.Hash() {
		t.Error("round-tripped block should hash identically")
	}
	if err := out.VerifySignatures(top); err != nil {
		t.Errorf("VerifySignatures on round-tripped block: %v", err)
	}
}

func TestBlockHeaderIsGenesis(t *testing.T) {
	h := BlockHeader{Height: 1}
	if !h.IsGenesis() {
		t.Error("height 1 should be genesis")
	}
	h.Height = 2
	if h.IsGenesis() {
		t.Error("height 2 should not be genesis")
	}
}
