// Package store provides typed access to a small persisted key-value store.
// It holds the last known user preferences between sessions.
//
// Values are stored as JSON documents. Three backends are available: an
// in-memory map for tests, a YAML file on disk that can be watched for
// external edits, and a single-table SQLite database.
package store

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/logging"
)

// Backend is the raw persistence layer beneath a Store.
type Backend interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Store wraps a Backend with a read-through cache and logging.
type Store struct {
	backend Backend
	logger  *zerolog.Logger

	mu    sync.RWMutex
	cache map[string][]byte
}

// New creates a Store over the given backend.
func New(backend Backend, logger *zerolog.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		cache:   make(map[string][]byte),
	}
}

// Raw returns the bytes stored under key.
func (s *Store) Raw(key string) ([]byte, bool, error) {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, true, nil
	}
	s.mu.RUnlock()

	v, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, false, errors.WrapResource("get", "store", key, err)
	}
	if ok {
		s.mu.Lock()
		s.cache[key] = v
		s.mu.Unlock()
	}
	return v, ok, nil
}

// SetRaw stores bytes under key.
func (s *Store) SetRaw(key string, value []byte) error {
	if err := s.backend.Set(key, value); err != nil {
		return errors.WrapResource("set", "store", key, err)
	}
	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	s.logger.Debug().Str("key", key).Int("bytes", len(value)).Msg("Stored value")
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	if err := s.backend.Delete(key); err != nil {
		return errors.WrapResource("delete", "store", key, err)
	}
	return nil
}

// Invalidate drops cached values so the next read goes to the backend.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get decodes the value stored under key into a T.
// A value that cannot be decoded is reported as a ParseError.
func Get[T any](s *Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Raw(key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, errors.WrapParse("json", key, err)
	}
	return v, true, nil
}

// Set encodes v and stores it under key.
func Set[T any](s *Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.WrapParse("json", key, err)
	}
	return s.SetRaw(key, raw)
}
