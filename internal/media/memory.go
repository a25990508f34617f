package media

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory implementation of the MediaStore interface,
// useful for testing. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string][]byte
}

// NewMemoryStore creates a new in-memory media store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

// Put stores the content under name.
func (m *MemoryStore) Put(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read media: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[name] = data
	return "images/" + name, nil
}

// Get returns the stored content, or nil if absent.
func (m *MemoryStore) Get(name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content[name]
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// Compile-time check that MemoryStore implements MediaStore.
var _ MediaStore = (*MemoryStore)(nil)
