package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tolchain/consensuscore/block"
)

// ErrNotFound is returned when a requested key or block does not exist.
var ErrNotFound = errors.New("storage: not found")

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()                { b.batch.Reset() }

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// ---- block.SignedBlock store ----

const (
	blockKeyPrefix  = "block:"
	heightKeyPrefix = "height:"
	tipKey          = "chain:tip"
)

// LevelBlockStore implements poa.BlockStore on top of LevelDB, storing the
// versioned block envelope and its height index atomically per commit.
type LevelBlockStore struct {
	db *LevelDB
}

// NewLevelBlockStore wraps a LevelDB instance as a block store.
func NewLevelBlockStore(db *LevelDB) *LevelBlockStore {
	return &LevelBlockStore{db: db}
}

func (s *LevelBlockStore) GetBlock(hashHex string) (block.SignedBlock, error) {
	data, err := s.db.Get([]byte(blockKeyPrefix + hashHex))
	if err != nil {
		return block.SignedBlock{}, err
	}
	var b block.SignedBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return block.SignedBlock{}, fmt.Errorf("storage: decoding block %s: %w", hashHex, err)
	}
	return b, nil
}

func (s *LevelBlockStore) GetBlockByHeight(height uint64) (block.SignedBlock, error) {
	key := fmt.Sprintf("%s%d", heightKeyPrefix, height)
	hash, err := s.db.Get([]byte(key))
	if err != nil {
		return block.SignedBlock{}, err
	}
	return s.GetBlock(string(hash))
}

func (s *LevelBlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte(tipKey))
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// CommitBlock writes the block, its height index entry, and the new tip
// pointer as a single atomic batch — a reader never observes a height
// index without the block it points to, or a tip without its block.
func (s *LevelBlockStore) CommitBlock(b block.SignedBlock) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("storage: encoding block: %w", err)
	}
	hash := b.Hash().Hex()
	heightKey := fmt.Sprintf("%s%d", heightKeyPrefix, b.Header().Height)

	batch := s.db.NewBatch()
	batch.Set([]byte(blockKeyPrefix+hash), data)
	batch.Set([]byte(heightKey), []byte(hash))
	batch.Set([]byte(tipKey), []byte(hash))
	return batch.Write()
}
