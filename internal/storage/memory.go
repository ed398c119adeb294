package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

func (m *MemoryStore) Write(ctx context.Context, key []string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[JoinKey(key)] = raw
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, key []string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[JoinKey(key)]
	if !ok {
		return nil, nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

func (m *MemoryStore) ReadInto(ctx context.Context, key []string, out any) error {
	return readInto(ctx, m, key, out)
}

func (m *MemoryStore) Update(ctx context.Context, key []string, fn func(map[string]any)) (map[string]any, error) {
	return update(ctx, m, key, fn)
}

func (m *MemoryStore) Remove(ctx context.Context, key []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, JoinKey(key))
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	p := JoinKey(prefix) + "/"
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for path := range m.data {
		if strings.HasPrefix(path, p) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	keys := make([][]string, len(paths))
	for i, path := range paths {
		keys[i] = SplitKey(path)
	}
	return keys, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]json.RawMessage)
	return nil
}
