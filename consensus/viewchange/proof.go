// Package viewchange implements the view-change proof engine: a peer that
// suspects the current proposer is faulty builds a SignedProof for the next
// view-change index, peers merge their signatures into a shared ProofChain
// as they gossip, and once a proof in the chain clears the f+1 signature
// quorum the view is considered changed. Grounded directly on the original
// implementation's sumeragi view-change module.
package viewchange

import (
	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
)

// ProofPayload is the signed content of a view-change proof: which block
// the signer considers latest, and which view-change round (0-indexed) this
// proof argues for.
type ProofPayload struct {
	LatestBlockHash *crypto.Hash[block.SignedBlock]
	ViewChangeIndex uint64
}

// CanonicalBytes implements crypto.Encodable.
func (p ProofPayload) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.OptionalBytes(p.LatestBlockHash != nil, optionalBytes(p.LatestBlockHash))
	e.Uint64(p.ViewChangeIndex)
	return e.Out()
}

func optionalBytes(h *crypto.Hash[block.SignedBlock]) []byte {
	if h == nil {
		return nil
	}
	return h.Bytes()
}

func sameLatestBlockHash(a, b *crypto.Hash[block.SignedBlock]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ProofSignature pairs a signer's topology node position with its signature
// over a ProofPayload.
type ProofSignature struct {
	NodePos uint64
	Sig     crypto.Sig[ProofPayload]
}

// SignedProof is a view-change proof together with however many peer
// signatures over it have been gathered so far. A proof becomes actionable
// once Verify reports it has reached the view-change quorum (f+1).
type SignedProof struct {
	Signatures []ProofSignature
	Payload    ProofPayload
}

// ProofBuilder constructs a SignedProof incrementally, mirroring the
// original's ProofBuilder: build the payload once, then let one or more
// signers attach their signature.
type ProofBuilder struct {
	proof SignedProof
}

// NewProofBuilder starts building a proof for the given view-change round,
// anchored to the signer's view of the latest committed block.
func NewProofBuilder(latestBlockHash *crypto.Hash[block.SignedBlock], viewChangeIndex uint64) ProofBuilder {
	return ProofBuilder{proof: SignedProof{Payload: ProofPayload{
		LatestBlockHash: latestBlockHash,
		ViewChangeIndex: viewChangeIndex,
	}}}
}

// Sign signs the builder's payload as node_pos and returns the resulting
// single-signature SignedProof.
func (b ProofBuilder) Sign(nodePos uint64, priv crypto.PrivateKey) SignedProof {
	sig := crypto.SignOf(priv, b.proof.Payload)
	out := SignedProof{
		Payload:    b.proof.Payload,
		Signatures: append(append([]ProofSignature{}, b.proof.Signatures...), ProofSignature{NodePos: nodePos, Sig: sig}),
	}
	return out
}

// MergeSignatures verifies each of other's signatures against top and
// appends the ones that check out. Invalid signatures are silently dropped,
// matching the original's merge_signatures — a peer gossiping a bad
// signature should not be able to poison the whole proof.
func (p *SignedProof) MergeSignatures(other []ProofSignature, top topology.Topology) {
	for _, sig := range other {
		pub, ok := top.PublicKeyAt(sig.NodePos)
		if !ok {
			continue
		}
		if err := sig.Sig.Verify(pub, p.Payload); err != nil {
			continue
		}
		p.Signatures = append(p.Signatures, sig)
	}
}

// Verify reports whether p carries at least f+1 valid signatures from
// distinct node positions under top. Counting distinct node_pos rather than
// raw signature count is a deliberate hardening over the original, which
// counted every verifying signature even if the same peer's signature
// appeared twice.
func (p SignedProof) Verify(top topology.Topology) bool {
	valid := make(map[uint64]struct{}, len(p.Signatures))
	for _, sig := range p.Signatures {
		pub, ok := top.PublicKeyAt(sig.NodePos)
		if !ok {
			continue
		}
		if err := sig.Sig.Verify(pub, p.Payload); err != nil {
			continue
		}
		valid[sig.NodePos] = struct{}{}
	}
	return uint64(len(valid)) >= top.Quorum(topology.QuorumViewChange)
}
