// Command consensusd runs one validator node: it loads its identity and
// topology from a JSON config, opens its durable block/state storage,
// joins the encrypted peer network, and runs the propose/validate/commit
// loop against its peers.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolchain/consensuscore/block"
	"github.com/tolchain/consensuscore/config"
	"github.com/tolchain/consensuscore/consensus/poa"
	"github.com/tolchain/consensuscore/consensus/viewchange"
	"github.com/tolchain/consensuscore/crypto/certgen"
	"github.com/tolchain/consensuscore/events"
	"github.com/tolchain/consensuscore/p2p"
	"github.com/tolchain/consensuscore/storage"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wallet"
	"github.com/tolchain/consensuscore/wsv"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	flag.Parse()

	password := os.Getenv("CONSENSUSD_PASSWORD")
	if password == "" {
		log.Println("WARNING: CONSENSUSD_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfg.NodeID)
		return
	}

	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db)

	chain := poa.NewChain(blockStore)
	if err := chain.Init(); err != nil {
		log.Fatalf("chain init: %v", err)
	}

	top, err := cfg.Topology()
	if err != nil {
		log.Fatalf("topology: %v", err)
	}

	if chain.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey, cfg.NodePos)
		if err != nil {
			log.Fatalf("genesis: %v", err)
		}
		if err := state.Commit(); err != nil {
			log.Fatalf("commit genesis state: %v", err)
		}
		if err := chain.AddBlock(genesis); err != nil {
			log.Fatalf("add genesis: %v", err)
		}
		log.Printf("Genesis block committed: %s", genesis.Hash().Hex())
	}

	emitter := events.NewEmitter()
	mempool := poa.NewMempool()
	viewChanges := make(viewchange.ProofChain, 0)

	engine := poa.New(top, chain, mempool, state, permissiveValidator{}, emitter, &viewChanges, privKey, cfg.NodePos, config.GenesisAccount)
	if cfg.MaxBlockTxs > 0 {
		engine.MaxBlockTxs = cfg.MaxBlockTxs
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	net := p2p.NewNetwork(fmt.Sprintf(":%d", cfg.P2PPort)).WithTLS(tlsCfg)
	registerHandlers(net, engine, mempool)
	syncer := p2p.NewSyncer(net, chain)
	if err := net.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer net.Stop()
	log.Printf("P2P listening on :%d", cfg.P2PPort)

	for i, peerCfg := range cfg.Peers {
		if uint64(i) == cfg.NodePos {
			continue
		}
		peer, err := net.Dial(peerCfg.Address)
		if err != nil {
			log.Printf("dial peer %s: %v", peerCfg.Address, err)
			continue
		}
		if err := syncer.RequestBlocks(peer, chain.Height()+1); err != nil {
			log.Printf("sync request to %s: %v", peerCfg.Address, err)
		}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(2*time.Second, func(candidate block.SignedBlock) {
			advanceCandidate(net, engine, candidate)
		}, done)
	}()
	log.Printf("Consensus running (validator position %d)", cfg.NodePos)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")
	close(done)
	wg.Wait()
	log.Println("Shutdown complete.")
}

// permissiveValidator is the default wsv.PermissionValidator for a node
// with no external instruction-permission system configured: every
// instruction is allowed. A deployment that needs real permission checks
// supplies its own wsv.PermissionValidator in place of this one.
type permissiveValidator struct{}

func (permissiveValidator) CheckInstruction(account string, instr wsv.Instruction, original wsv.WorldStateView) error {
	return nil
}

func registerHandlers(net *p2p.Network, engine *poa.PoA, mempool *poa.Mempool) {
	net.Handle("tx", func(peer *p2p.Peer, msg p2p.Message) {
		var txn tx.Transaction
		if err := json.Unmarshal(msg.Payload, &txn); err != nil {
			log.Printf("[tx] decode: %v", err)
			return
		}
		accepted, err := tx.Accept(txn, poa.DefaultMaxInstructions)
		if err != nil {
			log.Printf("[tx] reject: %v", err)
			return
		}
		if err := mempool.Add(accepted); err != nil {
			log.Printf("[tx] mempool: %v", err)
		}
	})

	net.Handle("block_candidate", func(peer *p2p.Peer, msg p2p.Message) {
		var candidate block.SignedBlock
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			log.Printf("[block_candidate] decode: %v", err)
			return
		}
		advanceCandidate(net, engine, candidate)
	})
}

// advanceCandidate drives one step of the gossip-based co-signing round: a
// candidate that already carries quorum is committed directly (harmless to
// repeat — Chain.AddBlock rejects a height it has already committed); one
// that passes validation is co-signed and re-broadcast so the rest of the
// topology converges on the same, growing signature set.
func advanceCandidate(net *p2p.Network, engine *poa.PoA, candidate block.SignedBlock) {
	if candidate.HasQuorum(engine.Top) {
		if err := engine.Commit(candidate); err != nil {
			log.Printf("[block_candidate] commit: %v", err)
		}
		return
	}
	if err := engine.ValidateCandidate(candidate); err != nil {
		log.Printf("[block_candidate] invalid: %v", err)
		return
	}
	signed := candidate.Sign(engine.PrivKey, engine.NodePos)
	data, err := json.Marshal(signed)
	if err != nil {
		log.Printf("[block_candidate] marshal: %v", err)
		return
	}
	net.Broadcast(p2p.Message{Type: "block_candidate", Payload: data})
	if signed.HasQuorum(engine.Top) {
		if err := engine.Commit(signed); err != nil {
			log.Printf("[block_candidate] commit: %v", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
