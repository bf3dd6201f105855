package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
)

// Backend is the raw key/value persistence mechanism. Any operation may fail;
// callers are expected to go through the Adapter, which degrades failures to
// defaults instead of propagating them.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryBackend is an in-process Backend, used in tests and as a fallback
// when no durable storage is configured.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", interrors.ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileBackend persists keys to a single JSON file, loaded once on open and
// written through on every mutation. Last write wins across processes.
type FileBackend struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

var _ Backend = (*FileBackend)(nil)

// OpenFileBackend loads the backing file if it exists. A missing file is a
// valid empty store; a corrupt file starts empty and is overwritten on the
// next write.
func OpenFileBackend(path string) (*FileBackend, error) {
	fb := &FileBackend{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fb, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[OpenFileBackend] read state file")
	}
	if err := json.Unmarshal(data, &fb.values); err != nil {
		fb.values = make(map[string]string)
	}
	return fb, nil
}

func (f *FileBackend) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", interrors.ErrKeyNotFound
	}
	return v, nil
}

func (f *FileBackend) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.flushLocked()
}

func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return f.flushLocked()
}

func (f *FileBackend) flushLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileBackend.flush] marshal")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "[FileBackend.flush] mkdir")
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileBackend.flush] write")
	}
	return nil
}

// Unavailable returns a Backend whose every operation fails, modelling an
// environment with no client-side storage (e.g. server-side rendering).
func Unavailable() Backend {
	return unavailableBackend{}
}

type unavailableBackend struct{}

func (unavailableBackend) Get(string) (string, error) { return "", interrors.ErrStorageUnavailable }
func (unavailableBackend) Set(string, string) error   { return interrors.ErrStorageUnavailable }
func (unavailableBackend) Delete(string) error        { return interrors.ErrStorageUnavailable }
