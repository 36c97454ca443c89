package p2p

import (
	"encoding/json"
	"log"

	"github.com/tolchain/consensuscore/block"
)

// MsgGetBlocks and MsgBlocks are the Syncer's two message types.
const (
	MsgGetBlocks = "get_blocks"
	MsgBlocks    = "blocks"
)

// GetBlocksRequest asks a peer for committed blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      int    `json:"limit"`
}

// BlocksResponse carries a batch of committed blocks in ascending height
// order.
type BlocksResponse struct {
	Blocks []block.SignedBlock `json:"blocks"`
}

const maxSyncBatch = 200
const defaultSyncBatch = 50

// ChainReader is the subset of consensus/poa.Chain that sync needs: height
// lookup for serving requests, and a way for AddBlock to accept catch-up
// blocks that have already reached quorum.
type ChainReader interface {
	GetBlockByHeight(height uint64) (block.SignedBlock, error)
	Height() uint64
	AddBlock(b block.SignedBlock) error
}

// Syncer answers other peers' block requests from the local chain and
// applies the blocks a requested batch returns, letting a node that falls
// behind (or one just joining) catch up on already-committed history
// instead of waiting to receive it block-by-block through consensus
// gossip. Grounded on the original implementation's request/response
// sync exchange, adapted from core.Block/core.Blockchain to
// block.SignedBlock/a ChainReader.
type Syncer struct {
	net   *Network
	chain ChainReader
}

// NewSyncer registers sync handlers on net and returns a Syncer requesting
// missing blocks against chain.
func NewSyncer(net *Network, chain ChainReader) *Syncer {
	s := &Syncer{net: net, chain: chain}
	net.Handle(MsgGetBlocks, s.handleGetBlocks)
	net.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// RequestBlocks asks peer for up to defaultSyncBatch blocks starting at
// fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight uint64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: defaultSyncBatch})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > maxSyncBatch {
		req.Limit = defaultSyncBatch
	}
	blocks := make([]block.SignedBlock, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint64(req.Limit); h++ {
		b, err := s.chain.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	if err := peer.Send(Message{Type: MsgBlocks, Payload: data}); err != nil {
		log.Printf("[sync] reply to %s: %v", peer.Addr, err)
	}
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if err := s.chain.AddBlock(b); err != nil {
			log.Printf("[sync] block %d from %s rejected: %v", b.Header().Height, peer.Addr, err)
			return
		}
	}
	if len(resp.Blocks) > 0 {
		last := resp.Blocks[len(resp.Blocks)-1]
		if err := s.RequestBlocks(peer, last.Header().Height+1); err != nil {
			log.Printf("[sync] requesting next batch from %s: %v", peer.Addr, err)
		}
	}
}
