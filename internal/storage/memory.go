package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryWriter keeps records in process memory. It backs dry runs, tests and
// single-shot use where nothing needs to outlive the process.
type MemoryWriter struct {
	mu      sync.RWMutex
	records map[string]Document
	closed  bool
}

// NewMemoryWriter creates an empty in-memory store
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{records: make(map[string]Document)}
}

func (m *MemoryWriter) Name() string { return "memory" }

func (m *MemoryWriter) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("memory store is closed")
	}
	_, ok := m.records[key]
	return ok, nil
}

func (m *MemoryWriter) WriteData(ctx context.Context, payload Payload, force bool) (bool, error) {
	key, doc, err := singleEntry(payload)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, fmt.Errorf("memory store is closed")
	}
	if _, ok := m.records[key]; ok && !force {
		return false, nil
	}
	m.records[key] = withID(key, doc)
	return true, nil
}

func (m *MemoryWriter) Read(ctx context.Context, key string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	return withID(key, doc), true, nil
}

func (m *MemoryWriter) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryWriter) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
