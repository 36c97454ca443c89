package p2p

import (
	"errors"
	"testing"
	"time"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

// errNoSuchHeight stands in for consensus/poa's richer chain errors; this
// test only needs a distinguishable failure.
var errNoSuchHeight = errors.New("sync_test: no such height")

// fakeChain is a minimal ChainReader backed by an in-memory slice, enough
// to exercise Syncer without a real consensus/poa.Chain.
type fakeChain struct {
	blocks []block.SignedBlock
}

func (c *fakeChain) GetBlockByHeight(height uint64) (block.SignedBlock, error) {
	if height == 0 || height > uint64(len(c.blocks)) {
		return block.SignedBlock{}, errNoSuchHeight
	}
	return c.blocks[height-1], nil
}

func (c *fakeChain) Height() uint64 { return uint64(len(c.blocks)) }

func (c *fakeChain) AddBlock(b block.SignedBlock) error {
	if b.Header().Height != uint64(len(c.blocks))+1 {
		return errNoSuchHeight
	}
	c.blocks = append(c.blocks, b)
	return nil
}

func signedBlockAt(t *testing.T, height uint64) block.SignedBlock {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	top := topology.New([]topology.PeerId{{Address: "p0", PublicKey: pub}})

	// Block decode rejects a block with no transactions, so each block
	// carries one validated mint.
	txn := tx.Transaction{Payload: tx.Payload{
		Account:      "genesis",
		Instructions: []wsv.Instruction{wsv.MintInstruction{To: pub.Hex(), Amount: height}},
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
	txs := []tx.Value{value}
	root := block.MerkleRootOf(txs)

	payload := block.BlockPayload{
		Header:         block.BlockHeader{Height: height, TransactionsHash: &root, TimestampMs: height},
		CommitTopology: top.Peers,
		Transactions:   txs,
	}
	return block.NewSignedBlockV1(payload).Sign(priv, 0)
}

// connectedNetworks wires two Networks together over an in-memory pipe pair,
// each driven by its own readLoop, the way TestNetworkRoutesMessageToHandler
// does for a single direction.
func connectedNetworks(t *testing.T) (server *Network, client *Network) {
	t.Helper()
	clientConn, serverConn := pipeConns()

	server = NewNetwork("")
	client = NewNetwork("")

	serverPeer := &Peer{Addr: "client-side", conn: serverConn, state: StateConnecting}
	clientPeer := &Peer{Addr: "server-side", conn: clientConn, state: StateConnecting}

	done := make(chan error, 2)
	go func() { done <- serverPeer.handshake(false) }()
	go func() { done <- clientPeer.handshake(true) }()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("handshake: %v", err)
		}
	}

	server.mu.Lock()
	server.peers[serverPeer.Addr] = serverPeer
	server.mu.Unlock()
	go server.readLoop(serverPeer)

	client.mu.Lock()
	client.peers[clientPeer.Addr] = clientPeer
	client.mu.Unlock()
	go client.readLoop(clientPeer)

	t.Cleanup(func() {
		serverPeer.Close()
		clientPeer.Close()
	})

	return server, client
}

func TestSyncerDeliversCommittedBlocks(t *testing.T) {
	serverChain := &fakeChain{blocks: []block.SignedBlock{signedBlockAt(t, 1), signedBlockAt(t, 2), signedBlockAt(t, 3)}}
	clientChain := &fakeChain{}

	serverNet, clientNet := connectedNetworks(t)
	NewSyncer(serverNet, serverChain)
	clientSyncer := NewSyncer(clientNet, clientChain)

	clientNet.mu.RLock()
	peer := clientNet.peers["server-side"]
	clientNet.mu.RUnlock()

	if err := clientSyncer.RequestBlocks(peer, 1); err != nil {
		t.Fatalf("RequestBlocks: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if clientChain.Height() == serverChain.Height() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out syncing: client height %d, want %d", clientChain.Height(), serverChain.Height())
		case <-time.After(10 * time.Millisecond):
		}
	}

	for h := uint64(1); h <= serverChain.Height(); h++ {
		want, _ := serverChain.GetBlockByHeight(h)
		got, err := clientChain.GetBlockByHeight(h)
		if err != nil {
			t.Fatalf("GetBlockByHeight(%d): %v", h, err)
		}
		if got.Hash() != want.Hash() {
			t.Errorf("block at height %d: hash mismatch after sync", h)
		}
	}
}
