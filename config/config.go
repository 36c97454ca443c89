// Package config loads the JSON configuration a node boots from: its
// identity, the network topology it participates in, genesis allocations,
// and optional mTLS material for the peer transport.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/topology"
)

// TLSConfig holds paths to the PEM files needed for mTLS on the peer
// transport. When nil or all paths empty, the node falls back to plain TCP
// (the garbage-padded session handshake is still performed either way).
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// PeerConfig describes one member of the topology by address and
// hex-encoded ed25519 public key.
type PeerConfig struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// GenesisConfig describes the chain's initial account state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex -> initial balance
}

// Config holds all node configuration.
type Config struct {
	NodeID      string        `json:"node_id"`
	DataDir     string        `json:"data_dir"`
	P2PPort     int           `json:"p2p_port"`
	NodePos     uint64        `json:"node_pos"`      // this node's index into Peers
	MaxBlockTxs int           `json:"max_block_txs"` // max transactions per block; 0 -> default
	Peers       []PeerConfig  `json:"peers"`         // the ordered topology
	Genesis     GenesisConfig `json:"genesis"`
	TLS         *TLSConfig    `json:"tls,omitempty"` // nil -> plain TCP
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID: "consensuscore-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("peers list must not be empty")
	}
	if c.NodePos >= uint64(len(c.Peers)) {
		return fmt.Errorf("node_pos %d out of range for %d peers", c.NodePos, len(c.Peers))
	}
	for i, p := range c.Peers {
		if p.Address == "" {
			return fmt.Errorf("peers[%d]: address must not be empty", i)
		}
		b, err := hex.DecodeString(p.PublicKey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("peers[%d]: public_key must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, p.PublicKey)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Topology builds a topology.Topology from the config's peer list, decoding
// each hex public key.
func (c *Config) Topology() (topology.Topology, error) {
	peers := make([]topology.PeerId, len(c.Peers))
	for i, p := range c.Peers {
		pub, err := hex.DecodeString(p.PublicKey)
		if err != nil {
			return topology.Topology{}, fmt.Errorf("peers[%d]: %w", i, err)
		}
		peers[i] = topology.PeerId{Address: p.Address, PublicKey: crypto.PublicKey(pub)}
	}
	return topology.New(peers), nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
