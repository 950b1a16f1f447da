package credstore

import (
	"context"
	"sync"
)

// Memory keeps secrets in process memory. Nothing survives a restart, so it
// is meant for tests and the "memory" driver.
type Memory struct {
	mu     sync.RWMutex
	values map[Key]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{values: make(map[Key]string)}
}

func (m *Memory) Get(ctx context.Context, key Key) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key Key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
