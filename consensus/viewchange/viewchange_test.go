package viewchange

import (
	"testing"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
)

type peerSet struct {
	top  topology.Topology
	keys []crypto.PrivateKey
}

func newPeerSet(t *testing.T, n int) peerSet {
	t.Helper()
	peers := make([]topology.PeerId, n)
	keys := make([]crypto.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		peers[i] = topology.PeerId{PublicKey: pub}
		keys[i] = priv
	}
	return peerSet{top: topology.New(peers), keys: keys}
}

func TestProofQuorum(t *testing.T) {
	// n=4 -> f=1, view-change quorum f+1=2.
	ps := newPeerSet(t, 4)
	builder := NewProofBuilder(nil, 0)
	proof := builder.Sign(0, ps.keys[0])
	if proof.Verify(ps.top) {
		t.Fatal("one signature should not satisfy a quorum of 2")
	}

	second := builder.Sign(1, ps.keys[1])
	proof.MergeSignatures(second.Signatures, ps.top)
	if !proof.Verify(ps.top) {
		t.Error("two distinct signatures should satisfy the view-change quorum")
	}
}

func TestProofVerifyDedupesNodePos(t *testing.T) {
	ps := newPeerSet(t, 4)
	builder := NewProofBuilder(nil, 0)
	proof := builder.Sign(0, ps.keys[0])
	// Merge in the same signer's signature again.
	proof.MergeSignatures(proof.Signatures, ps.top)
	if proof.Verify(ps.top) {
		t.Error("duplicate signatures from the same node position must not count twice toward quorum")
	}
}

func TestMergeSignaturesDropsInvalid(t *testing.T) {
	ps := newPeerSet(t, 4)
	other := newPeerSet(t, 4)
	builder := NewProofBuilder(nil, 0)
	proof := builder.Sign(0, ps.keys[0])

	// A signature from a key that doesn't match the topology's node 1 public key.
	bogus := NewProofBuilder(nil, 0).Sign(1, other.keys[1])
	proof.MergeSignatures(bogus.Signatures, ps.top)
	if len(proof.Signatures) != 1 {
		t.Errorf("len(Signatures) = %d, want 1 (bogus signature should be dropped)", len(proof.Signatures))
	}
}

func TestInsertProofAndVerifyWithState(t *testing.T) {
	ps := newPeerSet(t, 4)
	var chain ProofChain

	p0 := NewProofBuilder(nil, 0).Sign(0, ps.keys[0])
	if err := chain.InsertProof(p0, ps.top, nil); err != nil {
		t.Fatalf("InsertProof: %v", err)
	}
	if n := chain.VerifyWithState(ps.top, nil); n != 0 {
		t.Fatalf("VerifyWithState = %d, want 0 (round 0 not yet quorate)", n)
	}

	p0b := NewProofBuilder(nil, 0).Sign(1, ps.keys[1])
	if err := chain.InsertProof(p0b, ps.top, nil); err != nil {
		t.Fatalf("InsertProof (second signer): %v", err)
	}
	if n := chain.VerifyWithState(ps.top, nil); n != 1 {
		t.Errorf("VerifyWithState = %d, want 1 (round 0 now quorate)", n)
	}
}

func TestInsertProofRejectsWrongViewChangeIndex(t *testing.T) {
	ps := newPeerSet(t, 4)
	var chain ProofChain
	// Chain is empty, so the next unfinished round is 0; index 1 should be rejected.
	p := NewProofBuilder(nil, 1).Sign(0, ps.keys[0])
	if err := chain.InsertProof(p, ps.top, nil); err != ErrViewChangeNotFound {
		t.Errorf("InsertProof error = %v, want ErrViewChangeNotFound", err)
	}
}

func TestInsertProofRejectsBlockHashMismatch(t *testing.T) {
	ps := newPeerSet(t, 4)
	var chain ProofChain

	var someHash crypto.Hash[block.SignedBlock]
	someHash[0] = 1
	p := NewProofBuilder(&someHash, 0).Sign(0, ps.keys[0])
	if err := chain.InsertProof(p, ps.top, nil); err != ErrBlockHashMismatch {
		t.Errorf("InsertProof error = %v, want ErrBlockHashMismatch", err)
	}
}

func TestPrune(t *testing.T) {
	ps := newPeerSet(t, 4)
	var chain ProofChain
	p0 := NewProofBuilder(nil, 0).Sign(0, ps.keys[0])
	p1 := NewProofBuilder(nil, 1).Sign(0, ps.keys[0])
	chain = append(chain, p0, p1)

	chain.Prune(nil)
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2 (both entries index-consistent)", len(chain))
	}

	bad := NewProofBuilder(nil, 5).Sign(0, ps.keys[0])
	chain = append(chain, bad)
	chain.Prune(nil)
	if len(chain) != 2 {
		t.Errorf("len(chain) = %d, want 2 (index-inconsistent tail pruned)", len(chain))
	}
}
