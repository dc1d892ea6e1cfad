package session

import (
	"errors"
	"os"
	"sync"
)

// ErrNoCookie is returned by a CookieStore with no stored value.
var ErrNoCookie = errors.New("no auth cookie stored")

// CookieStore persists the serialized auth cookie value for the shared
// client between process restarts (or just across calls, for the in-memory
// variant used by tests).
type CookieStore interface {
	Get() (string, error)
	Set(value string) error
	Clear() error
}

// MemoryStore keeps the cookie value in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	value string
	set   bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return "", ErrNoCookie
	}
	return s.value, nil
}

func (s *MemoryStore) Set(value string) error {
	s.mu.Lock()
	s.value = value
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.value = ""
	s.set = false
	s.mu.Unlock()
	return nil
}

// FileStore persists the cookie value to a single file, so a restarted
// process resumes its previous session.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCookie
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNoCookie
	}
	return string(data), nil
}

func (s *FileStore) Set(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path, []byte(value), 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
