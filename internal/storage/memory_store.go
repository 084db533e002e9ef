package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps objects in a map. It backs the "memory" cache backend and
// doubles as a test fake: it counts calls per operation and can be told to fail.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	calls   map[string]int
	putErr  error
	getErr  error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]*Object{}, calls: map[string]int{}}
}

func (m *MemoryStore) Put(ctx context.Context, obj *Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["put"]++

	if m.putErr != nil {
		return "", m.putErr
	}
	hash, err := objectHash(obj)
	if err != nil {
		return "", err
	}
	if held, ok := m.objects[hash]; ok {
		held.Metadata.RefCount++
		return hash, nil
	}
	m.objects[hash] = &Object{
		Hash: hash,
		Type: obj.Type,
		Size: int64(len(obj.Data)),
		Data: slices.Clone(obj.Data),
		Metadata: Metadata{
			CreatedAt: time.Now().UTC(),
			RefCount:  1,
			Custom:    copyCustom(obj.Metadata.Custom),
		},
	}
	return hash, nil
}

// Get returns a copy; callers cannot mutate what the store holds.
func (m *MemoryStore) Get(ctx context.Context, hash string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++

	if m.getErr != nil {
		return nil, m.getErr
	}
	held, ok := m.objects[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	out := *held
	out.Data = slices.Clone(held.Data)
	out.Metadata.Custom = copyCustom(held.Metadata.Custom)
	return &out, nil
}

func (m *MemoryStore) Exists(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["exists"]++

	_, ok := m.objects[hash]
	return ok, nil
}

func (m *MemoryStore) Delete(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++

	if _, ok := m.objects[hash]; !ok {
		return ErrNotFound{Hash: hash}
	}
	delete(m.objects, hash)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["list"]++

	hashes := make([]string, 0, len(m.objects))
	for _, hash := range slices.Sorted(maps.Keys(m.objects)) {
		if objectType == "" || m.objects[hash].Type == objectType {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

func (m *MemoryStore) Close() error { return nil }

// SetPutError makes Put fail with err until cleared with nil.
func (m *MemoryStore) SetPutError(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// SetGetError makes Get fail with err until cleared with nil.
func (m *MemoryStore) SetGetError(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

// Calls reports how often op ("put", "get", "exists", "delete", "list") ran.
func (m *MemoryStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *MemoryStore) PutCalls() int { return m.Calls("put") }
func (m *MemoryStore) GetCalls() int { return m.Calls("get") }

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Corrupt replaces the bytes held for hash without touching its metadata.
func (m *MemoryStore) Corrupt(hash string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.objects[hash]; ok {
		held.Data = slices.Clone(data)
		held.Size = int64(len(data))
	}
}
