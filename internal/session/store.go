package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a synchronous local key-value slot. Implementations never
// perform network I/O.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool)
	// Set stores the value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string) error
}

// MemoryStore is a volatile in-process Store. Its contents do not survive
// a restart.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FileStore is a durable Store keeping one file per key under a directory.
// It survives process restarts.
type FileStore struct {
	dir string
}

// NewFileStore creates a durable store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(key string) string {
	// Keys are short identifiers like "user"; anything path-like is flattened.
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, safe+".json")
}

func (f *FileStore) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (f *FileStore) Set(key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(f.path(key), value, 0600)
}

func (f *FileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
