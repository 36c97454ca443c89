// Package topology describes the ordered peer set a block or view-change
// proof is evaluated against: who the peers are, and the fault-tolerance
// arithmetic derived from how many of them there are.
package topology

import (
	"bytes"

	"github.com/tolchain/consensuscore/crypto"
)

// PeerId identifies a peer by its network address and, once known, its
// public key. Two PeerIds with the same Address but different (or absent)
// PublicKey are still considered the same network endpoint for dialing
// purposes; PublicKey is what topology indexing and signature verification
// care about.
type PeerId struct {
	Address   string           `json:"address"`
	PublicKey crypto.PublicKey `json:"public_key"` // nil if not yet known (e.g. before handshake)
}

// CanonicalBytes implements crypto.Encodable so a commit topology can be
// embedded in a BlockPayload and covered by its hash.
func (p PeerId) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.String(p.Address)
	e.Bytes(p.PublicKey)
	return e.Out()
}

// Equal compares two PeerIds by address and public key bytes.
func (p PeerId) Equal(other PeerId) bool {
	return p.Address == other.Address && bytes.Equal(p.PublicKey, other.PublicKey)
}

// QuorumKind selects which quorum size Topology.Quorum should return.
type QuorumKind int

const (
	// QuorumViewChange is f+1, the number of valid signatures a view-change
	// proof needs before the proof is accepted.
	QuorumViewChange QuorumKind = iota
	// QuorumCommit is 2f+1, the number of valid signatures a block needs to
	// be considered committed.
	QuorumCommit
)

// Topology is the ordered peer list in effect for a block height. Node
// positions (indices into Peers) are what BlockSignature and
// view-change-proof signatures reference, so the order must not change
// within a height once construction is complete.
type Topology struct {
	Peers []PeerId
}

// New returns a Topology over peers in the given order. Construction of the
// peer order itself is the caller's responsibility (the block-commit
// pipeline); Topology is a pure value type.
func New(peers []PeerId) Topology {
	return Topology{Peers: peers}
}

// Len returns the number of peers, n.
func (t Topology) Len() int {
	return len(t.Peers)
}

// PublicKeyAt returns the public key at node position i, or (nil, false) if
// i is out of range. Callers that receive a signature referencing an
// out-of-range position must treat it as invalid, never panic.
func (t Topology) PublicKeyAt(i uint64) (crypto.PublicKey, bool) {
	if i >= uint64(len(t.Peers)) {
		return nil, false
	}
	pk := t.Peers[i].PublicKey
	if pk == nil {
		return nil, false
	}
	return pk, true
}

// MaxFaults returns f = ⌊(n−1)/3⌋, the maximum number of Byzantine peers
// this topology can tolerate.
func (t Topology) MaxFaults() uint64 {
	n := uint64(len(t.Peers))
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum returns the number of valid signatures required for the given
// quorum kind: f+1 for view-change, 2f+1 for commit.
func (t Topology) Quorum(kind QuorumKind) uint64 {
	f := t.MaxFaults()
	switch kind {
	case QuorumCommit:
		return 2*f + 1
	default:
		return f + 1
	}
}
