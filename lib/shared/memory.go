package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Store. Suitable for single-server deployments and
// tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

var (
	_ Store   = (*Memory)(nil)
	_ Swapper = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = clone(value)
	return nil
}

// CompareAndSwap implements Swapper.
func (m *Memory) CompareAndSwap(_ context.Context, key string, prev, next json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.values[key]
	if prev == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, prev) {
		return false, nil
	}
	m.values[key] = clone(next)
	return true, nil
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
