package store

import (
	"bytes"
	"sort"
	"sync"
)

// MemDB is an in-memory DB implementation used by tests in this module and
// its dependents, so BlockStore behavior can be exercised without a
// filesystem-backed LevelDB instance.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty in-memory DB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) NewIterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memIterator{db: m, keys: keys, pos: -1}
}

func (m *MemDB) NewBatch() Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

type memIterator struct {
	db   *MemDB
	keys []string
	pos  int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte {
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	return it.db.data[it.keys[it.pos]]
}

func (it *memIterator) Release()     {}
func (it *memIterator) Error() error { return nil }

type memOp struct {
	delete bool
	key    []byte
	value  []byte
}

type memBatch struct {
	db  *MemDB
	ops []memOp
}

func (b *memBatch) Set(key, value []byte) {
	b.ops = append(b.ops, memOp{key: key, value: value})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{delete: true, key: key})
}

func (b *memBatch) Write() error {
	for _, op := range b.ops {
		if op.delete {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Set(op.key, op.value); err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}

func (b *memBatch) Reset() { b.ops = nil }
