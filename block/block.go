package block

import (
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/events"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
)

// BlockPayload is the part of a block covered by peer signatures.
type BlockPayload struct {
	Header               BlockHeader        `json:"header"`
	CommitTopology       []topology.PeerId  `json:"commit_topology"`
	Transactions         []tx.Value         `json:"transactions"`
	EventRecommendations []events.Event     `json:"event_recommendations"`
}

// CanonicalBytes implements crypto.Encodable.
func (p BlockPayload) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.Sub(p.Header)
	crypto.Slice[topology.PeerId](e, p.CommitTopology)
	crypto.Slice[tx.Value](e, p.Transactions)
	crypto.Slice[events.Event](e, p.EventRecommendations)
	return e.Out()
}

// BlockSignature is a single peer's signature over a BlockPayload, indexed
// by the signer's position in the commit topology rather than carrying its
// own public key — the verifier looks NodePos up in the topology that was
// in effect for the block (spec.md §6).
type BlockSignature struct {
	NodePos uint64                   `json:"node_pos"`
	Sig     crypto.Sig[BlockPayload] `json:"signature"`
}

// CanonicalBytes implements crypto.Encodable.
func (s BlockSignature) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.Uint64(s.NodePos)
	e.Bytes(s.Sig.Bytes)
	return e.Out()
}

// Verify checks s against payload using top to resolve NodePos to a public
// key. Returns an error if NodePos is out of range for top as well as for a
// bad signature.
func (s BlockSignature) Verify(top topology.Topology, payload BlockPayload) error {
	pub, ok := top.PublicKeyAt(s.NodePos)
	if !ok {
		return errOutOfRangeNodePos(s.NodePos)
	}
	return s.Sig.Verify(pub, payload)
}

// BlockVersion is the wire version tag of a SignedBlock envelope.
type BlockVersion uint8

// V1 is the only block version this core understands.
const V1 BlockVersion = 1

// SignedBlockV1 is version 1 of the signed block envelope: peer signatures
// plus the payload they cover.
type SignedBlockV1 struct {
	Signatures []BlockSignature `json:"signatures"`
	Payload    BlockPayload     `json:"payload"`
}

// CanonicalBytes implements crypto.Encodable.
func (v SignedBlockV1) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	crypto.Slice[BlockSignature](e, v.Signatures)
	e.Sub(v.Payload)
	return e.Out()
}

// SignedBlock is the versioned block envelope callers construct, sign,
// store and gossip. It is forward-compatible: a future V2 would add a case
// to the version switch in CanonicalBytes and the JSON codec in
// candidate.go without touching V1 callers.
type SignedBlock struct {
	Version BlockVersion
	v1      *SignedBlockV1
}

// NewSignedBlockV1 wraps payload as an unsigned V1 block.
func NewSignedBlockV1(payload BlockPayload) SignedBlock {
	return SignedBlock{Version: V1, v1: &SignedBlockV1{Payload: payload}}
}

// CanonicalBytes implements crypto.Encodable.
func (b SignedBlock) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.Uint64(uint64(b.Version))
	switch b.Version {
	case V1:
		e.Sub(*b.v1)
	}
	return e.Out()
}

// Hash returns the block's own hash, covering signatures and payload alike.
func (b SignedBlock) Hash() crypto.Hash[SignedBlock] {
	return crypto.HashOf(b)
}

// HashOfPayload returns the hash of the signed-over payload alone, the value
// BlockSignature.Sig actually covers.
func (b SignedBlock) HashOfPayload() crypto.Hash[BlockPayload] {
	return crypto.HashOf(b.v1.Payload)
}

// Header returns the block header.
func (b SignedBlock) Header() BlockHeader { return b.v1.Payload.Header }

// Transactions returns the block's committed transaction values.
func (b SignedBlock) Transactions() []tx.Value { return b.v1.Payload.Transactions }

// CommitTopology returns the peer topology in effect when this block was
// committed.
func (b SignedBlock) CommitTopology() []topology.PeerId { return b.v1.Payload.CommitTopology }

// Signatures returns the peer signatures gathered so far.
func (b SignedBlock) Signatures() []BlockSignature { return b.v1.Signatures }

// Payload returns the signed-over payload.
func (b SignedBlock) Payload() BlockPayload { return b.v1.Payload }

// Sign returns a copy of b with an additional signature by priv at node
// position nodePos appended. The original is left untouched.
func (b SignedBlock) Sign(priv crypto.PrivateKey, nodePos uint64) SignedBlock {
	sig := crypto.SignOf(priv, b.v1.Payload)
	grown := SignedBlockV1{
		Payload:    b.v1.Payload,
		Signatures: append(append([]BlockSignature{}, b.v1.Signatures...), BlockSignature{NodePos: nodePos, Sig: sig}),
	}
	return SignedBlock{Version: b.Version, v1: &grown}
}

// VerifySignatures checks every signature against top, returning the first
// error encountered (an out-of-range node position, or a bad signature).
func (b SignedBlock) VerifySignatures(top topology.Topology) error {
	for _, sig := range b.v1.Signatures {
		if err := sig.Verify(top, b.v1.Payload); err != nil {
			return err
		}
	}
	return nil
}

// HasQuorum reports whether b carries at least the commit quorum's worth of
// distinct-node-position signatures under top.
func (b SignedBlock) HasQuorum(top topology.Topology) bool {
	seen := make(map[uint64]struct{}, len(b.v1.Signatures))
	for _, sig := range b.v1.Signatures {
		seen[sig.NodePos] = struct{}{}
	}
	return uint64(len(seen)) >= top.Quorum(topology.QuorumCommit)
}
