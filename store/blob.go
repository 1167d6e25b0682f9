package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryBlobs keeps revisions in process memory. Used by tests and by
// deployments that treat documents as session-scoped.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: map[string][]byte{}}
}

func (m *MemoryBlobs) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobs) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlobs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// DiskBlobs stores each revision as one file under a root directory.
type DiskBlobs struct {
	root string
}

func NewDiskBlobs(root string) (*DiskBlobs, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating blob root: %w", err)
	}
	return &DiskBlobs{root: root}, nil
}

func (d *DiskBlobs) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("store: invalid blob key %q", key)
	}
	return filepath.Join(d.root, key+".pdf"), nil
}

func (d *DiskBlobs) Put(key string, data []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: writing blob: %w", err)
	}
	return os.Rename(tmp, p)
}

func (d *DiskBlobs) Get(key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading blob: %w", err)
	}
	return data, nil
}

func (d *DiskBlobs) Delete(key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
