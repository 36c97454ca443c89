package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/wsv"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixTx      = registerPrefix("tx:")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB is a durable wsv.WorldStateView backed by a DB, with an in-memory
// write buffer, snapshot/rollback, and deterministic state-root computation
// — the durable counterpart to wsv.MemoryWSV, for a node that must survive
// restarts. Snapshot records the write buffer so RevertToSnapshot can roll
// it back; Commit flushes buffered writes to the DB.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

// Clone returns an independent in-memory copy of the write buffer layered
// over the same underlying db, satisfying wsv.WorldStateView. The clone
// shares nothing mutable with the original: speculative execution against
// the clone never leaks into state a concurrent reader might observe.
func (s *StateDB) Clone() wsv.WorldStateView {
	out := &StateDB{
		db:      s.db,
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.dirty[k] = cp
	}
	for k, v := range s.deleted {
		out.deleted[k] = v
	}
	return out
}

// ContainsTx reports whether hashHex has been recorded via MarkCommitted.
func (s *StateDB) ContainsTx(hashHex string) bool {
	_, err := s.get(prefixTx + hashHex)
	return err == nil
}

// MarkCommitted records a transaction hash as part of the chain's
// write buffer; it becomes durable on the next Commit.
func (s *StateDB) MarkCommitted(hashHex string) {
	s.set(prefixTx+hashHex, []byte{1})
}

// ---- Account (wsv.AccountStore) ----

// Account returns the account at address from the write buffer or db.
func (s *StateDB) Account(address string) (wsv.Account, bool) {
	data, err := s.get(prefixAccount + address)
	if err != nil {
		return wsv.Account{}, false
	}
	var acc wsv.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return wsv.Account{}, false
	}
	return acc, true
}

// SetAccount stores acc in the write buffer.
func (s *StateDB) SetAccount(acc wsv.Account) {
	data, err := json.Marshal(acc)
	if err != nil {
		panic(fmt.Sprintf("storage: marshaling account: %v", err))
	}
	s.set(prefixAccount+acc.Address, data)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() int {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot
// corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("storage: invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state. It
// merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted
// key-value pairs using length-prefix encoding. It does not flush or
// modify state, so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return hex.EncodeToString(crypto.HashBytes(buf.Bytes()))
}

// Commit atomically flushes the write buffer to the underlying DB via a
// WriteBatch and then clears it. Call ComputeRoot() before signing the
// block, then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
