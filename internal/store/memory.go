package store

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local store, used for tests and throwaway sessions
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	puts    int
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = slices.Clone(value)
	m.puts++
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Puts reports how many writes the store has accepted
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

func (m *Memory) Close() error { return nil }
