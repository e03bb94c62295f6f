package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps collections in process memory. Each collection has its
// own lock so Update is serialised per collection only.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]Records
	locks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]Records),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) lock(collection string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		m.locks[collection] = l
	}
	return l
}

func (m *MemoryStore) read(collection string) Records {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.data[collection])
}

func (m *MemoryStore) write(collection string, records Records) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[collection] = clone(records)
}

func (m *MemoryStore) GetAll(_ context.Context, collection string) (Records, error) {
	if err := Validate(collection); err != nil {
		return nil, err
	}
	return m.read(collection), nil
}

func (m *MemoryStore) SetAll(_ context.Context, collection string, records Records) error {
	if err := Validate(collection); err != nil {
		return err
	}
	l := m.lock(collection)
	l.Lock()
	defer l.Unlock()
	m.write(collection, records)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	if err := Validate(collection); err != nil {
		return err
	}
	l := m.lock(collection)
	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := fn(m.read(collection))
	if err != nil {
		return err
	}
	m.write(collection, next)
	return nil
}

// clone deep-copies records so callers never share buffers with the store.
func clone(in Records) Records {
	out := make(Records, len(in))
	for i, r := range in {
		out[i] = json.RawMessage(bytes.Clone(r))
	}
	return out
}
