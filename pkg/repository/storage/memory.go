package storage

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-memory attachment store for testing and local development.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates a new in-memory attachment store
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
	}
}

// Put stores a copy of the blob and returns its key.
func (m *Memory) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	key := fmt.Sprintf("attachments/%s/%s", uuid.Must(uuid.NewV7()).String(), path.Base(name))

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = stored

	return key, nil
}

// Get returns a copy of the blob for the given key.
func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ref]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "no such object", goerr.V("key", ref))
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
