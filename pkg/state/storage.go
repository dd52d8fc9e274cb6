// Package state provides the persistence surface the SDK's dialog layer
// sits on: a key-value storage contract with optimistic concurrency, an
// in-memory implementation, and conversation-scoped property accessors.
//
// Concrete backends (blob or document stores) live outside this module and
// are responsible for serializing concurrent turns of one conversation.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ETagAny is the wildcard etag: writes carrying it are unconditional.
const ETagAny = "*"

// ErrETagMismatch is returned when a conditional write loses an optimistic
// concurrency race.
var ErrETagMismatch = errors.New("etag mismatch")

// Entry is one stored value with its concurrency token.
type Entry struct {
	Value json.RawMessage `json:"value"`
	ETag  string          `json:"etag,omitempty"`
}

// Storage reads, writes, and deletes entries by opaque string keys.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]Entry, error)
	Write(ctx context.Context, changes map[string]Entry) error
	Delete(ctx context.Context, keys []string) error
}

// MemoryStorage is an in-process Storage with etag enforcement, for tests
// and single-process bots.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]Entry
	etag    int64
}

// NewMemoryStorage builds an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]Entry)}
}

func (s *MemoryStorage) Read(_ context.Context, keys []string) (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]Entry, len(keys))
	for _, key := range keys {
		if entry, ok := s.entries[key]; ok {
			result[key] = entry
		}
	}

	return result, nil
}

func (s *MemoryStorage) Write(_ context.Context, changes map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, change := range changes {
		current, exists := s.entries[key]
		if exists && change.ETag != "" && change.ETag != ETagAny && change.ETag != current.ETag {
			return fmt.Errorf("write %q: %w", key, ErrETagMismatch)
		}

		s.etag++
		s.entries[key] = Entry{Value: change.Value, ETag: strconv.FormatInt(s.etag, 10)}
	}

	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}

	return nil
}
