package poa

import (
	"errors"
	"sync"
	"time"

	"github.com/tolchain/consensuscore/tx"
)

// maxMempoolSize caps the number of accepted-but-not-yet-included
// transactions a node will hold at once.
const maxMempoolSize = 10_000

// maxTxTTL is the ceiling applied on top of a payload's own
// TimeToLiveMs, mirroring the teacher mempool's age guard.
const maxTxTTL = time.Hour

// Mempool is a thread-safe pool of Accepted transactions awaiting inclusion
// in a block. Unlike the teacher's Mempool, entries are already
// structurally verified (tx.Accept has run) — Validate happens at block
// production time, against whatever world-state is current then.
type Mempool struct {
	mu  sync.RWMutex
	txs map[string]tx.Accepted
	ord []string
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{txs: make(map[string]tx.Accepted)}
}

// Add inserts an accepted transaction, keyed by its payload hash.
func (m *Mempool) Add(accepted tx.Accepted) error {
	hash := accepted.Hash().Hex()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxMempoolSize {
		return errors.New("poa: mempool full")
	}
	if _, exists := m.txs[hash]; exists {
		return errors.New("poa: transaction already in pool")
	}
	m.txs[hash] = accepted
	m.ord = append(m.ord, hash)
	return nil
}

// Pending returns up to n pending transactions in insertion order, dropping
// any that have expired as of nowMs.
func (m *Mempool) Pending(n int, nowMs uint64) []tx.Accepted {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]tx.Accepted, 0, n)
	for _, hash := range m.ord {
		accepted, ok := m.txs[hash]
		if !ok {
			continue
		}
		if accepted.Payload().IsExpired(nowMs, maxTxTTL) {
			continue
		}
		result = append(result, accepted)
		if len(result) >= n {
			break
		}
	}
	return result
}

// Remove deletes transactions by payload hash, called after their block
// commits (or after they are found already on-chain during re-validation).
func (m *Mempool) Remove(hashes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		delete(m.txs, h)
		removed[h] = true
	}
	filtered := m.ord[:0]
	for _, h := range m.ord {
		if !removed[h] {
			filtered = append(filtered, h)
		}
	}
	m.ord = filtered
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
