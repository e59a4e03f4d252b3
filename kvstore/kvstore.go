// Package kvstore defines the KeyValueStore interface the world-state
// layer treats as an external collaborator (spec §6), plus two concrete
// implementations: an in-memory map-backed store for tests, and a
// goleveldb-backed store for persistence.
package kvstore

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/types"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// KeyValueStore is the storage interface the engine's trie and account
// layers depend on. Implementations need not be transactional; callers
// are responsible for write ordering (the world-state commit path writes
// trie nodes before updating the root pointer).
type KeyValueStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// Batch returns a write batch for atomic multi-key commits.
	Batch() Batch
	Close() error
}

// Batch accumulates writes for a single atomic commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// MemoryStore is an in-memory, map-backed KeyValueStore. Safe for
// concurrent use; intended for tests and the CLI harness, not production
// persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemoryStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemoryStore) Batch() Batch {
	return &memoryBatch{store: m}
}

func (m *MemoryStore) Close() error { return nil }

type memoryOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memoryBatch struct {
	store *MemoryStore
	ops   []memoryOp
}

func (b *memoryBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *memoryBatch) Delete(key []byte) {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), delete: true})
}

func (b *memoryBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.store.data, string(op.key))
		} else {
			b.store.data[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *memoryBatch) Reset() { b.ops = b.ops[:0] }

// LevelDBStore is a disk-backed KeyValueStore wrapping goleveldb.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if necessary) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (l *LevelDBStore) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return v, nil
}

func (l *LevelDBStore) Put(key, value []byte) error { return l.db.Put(key, value, nil) }
func (l *LevelDBStore) Delete(key []byte) error      { return l.db.Delete(key, nil) }

func (l *LevelDBStore) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDBStore) Batch() Batch {
	return &levelDBBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (l *LevelDBStore) Close() error { return l.db.Close() }

// Iterate calls fn for every key with the given prefix, in key order.
// Iteration stops early if fn returns false.
func (l *LevelDBStore) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

type levelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelDBBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelDBBatch) Delete(key []byte)      { b.batch.Delete(key) }
func (b *levelDBBatch) Write() error           { return b.db.Write(b.batch, nil) }
func (b *levelDBBatch) Reset()                 { b.batch.Reset() }

// AccountView projects a single account's storage slots into an
// address-scoped key namespace over a shared backing store, by XORing a
// keccak of the account's address into the high bytes of every key. This
// lets every account's storage trie nodes and code/ABI blobs live in one
// physical KeyValueStore without key collisions, without needing
// per-account store instances.
type AccountView struct {
	back   KeyValueStore
	prefix []byte // keccak256(address), 32 bytes
}

// NewAccountView returns a KeyValueStore scoped to addr's storage namespace.
func NewAccountView(back KeyValueStore, addr types.Address) *AccountView {
	return &AccountView{back: back, prefix: scopePrefix(addr)}
}

func scopePrefix(addr types.Address) []byte {
	return crypto.Keccak256(addr.Bytes())
}

// scope XORs the view's address-derived prefix into the leading bytes of
// key, so a key shorter than the prefix (e.g. the fixed "code"/"abi"
// markers) is scoped over its full length and a 32-byte storage slot key
// is scoped over all of it.
func (v *AccountView) scope(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	for i := 0; i < len(out) && i < len(v.prefix); i++ {
		out[i] ^= v.prefix[i]
	}
	return out
}

func (v *AccountView) Get(key []byte) ([]byte, error)    { return v.back.Get(v.scope(key)) }
func (v *AccountView) Put(key, value []byte) error       { return v.back.Put(v.scope(key), value) }
func (v *AccountView) Delete(key []byte) error           { return v.back.Delete(v.scope(key)) }
func (v *AccountView) Has(key []byte) (bool, error)      { return v.back.Has(v.scope(key)) }
func (v *AccountView) Close() error                      { return nil }
func (v *AccountView) Batch() Batch                      { return &scopedBatch{view: v, inner: v.back.Batch()} }

type scopedBatch struct {
	view  *AccountView
	inner Batch
}

func (b *scopedBatch) Put(key, value []byte) { b.inner.Put(b.view.scope(key), value) }
func (b *scopedBatch) Delete(key []byte)     { b.inner.Delete(b.view.scope(key)) }
func (b *scopedBatch) Write() error          { return b.inner.Write() }
func (b *scopedBatch) Reset()                { b.inner.Reset() }
