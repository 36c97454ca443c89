// Package storage provides the durable key-value layer the block store and
// world-state view are persisted on: a thin DB/Batch/Iterator abstraction
// with a LevelDB implementation, plus a StateDB that layers a dirty/deleted
// write buffer (and snapshot/rollback) on top of it the way the teacher's
// state database does.
package storage

// Batch is an atomic write buffer. All operations are applied together
// via Write() or discarded together on error, preventing partial commits.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// DB is the generic key-value store interface.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}
