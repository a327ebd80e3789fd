package testing

import (
	"context"
	"sync"
)

// MockObjectDeleter is a mock object store for purge tests. It records the
// keys requested for deletion and can simulate failures.
type MockObjectDeleter struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

// NewMockObjectDeleter creates a new mock object deleter
func NewMockObjectDeleter() *MockObjectDeleter {
	return &MockObjectDeleter{}
}

// SetError sets the error to return
func (m *MockObjectDeleter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// DeleteObjects records the keys and returns the configured error.
func (m *MockObjectDeleter) DeleteObjects(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, keys...)
	return m.err
}

// Deleted returns a copy of all keys requested for deletion so far.
func (m *MockObjectDeleter) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
