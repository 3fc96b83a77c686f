package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemStorage is an in-memory blob store with switchable failures.
type MemStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	FailPut error
	FailDel error
}

func NewMemStorage() *MemStorage {
	return &MemStorage{blobs: map[string][]byte{}}
}

func (m *MemStorage) Store(_ context.Context, r io.Reader, key string) (string, error) {
	if m.FailPut != nil {
		return "", m.FailPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return key, nil
}

func (m *MemStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemStorage) Delete(_ context.Context, key string) error {
	if m.FailDel != nil {
		return m.FailDel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Put seeds a blob directly.
func (m *MemStorage) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
}

// Keys lists stored keys in sorted order.
func (m *MemStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
