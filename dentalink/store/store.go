// Package store defines the persistence port used by the SDK's offline
// queue and metrics monitor, together with the standard backends.
package store

import (
	"errors"
	"sync"
)

// Keys under which the SDK persists its state. A Store may be shared by
// several processes; writes to the same key are last-writer-wins.
const (
	KeyQueue        = "dentalink:queue"
	KeyMetrics      = "dentalink:metrics"
	KeyClientID     = "dentalink:client_id"
	KeySyncFailures = "dentalink:sync_failures"
)

// ErrNotFound is returned by Load when the key has never been saved.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence port. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

// Memory is an in-process Store. It is the default backend and the one
// used in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
