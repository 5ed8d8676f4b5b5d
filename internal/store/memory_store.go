package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

// MemoryStore keeps one scope's quiz state in process. Values are stored
// JSON-encoded so callers never share maps with the store.
type MemoryStore struct {
	mu        sync.Mutex
	fields    map[string][]byte
	completed bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fields: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context) (*quiz.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fields) == 0 {
		return nil, nil
	}
	return decodeFields(s.fields)
}

func (s *MemoryStore) Save(_ context.Context, st *quiz.State) error {
	encoded, err := encodeFields(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range encoded {
		s.fields[k] = v
	}
	return nil
}

func (s *MemoryStore) SaveTimeRemaining(_ context.Context, seconds int) error {
	raw, _ := json.Marshal(seconds)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[fieldTimeLeft] = raw
	return nil
}

func (s *MemoryStore) Completed(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string][]byte)
	return nil
}

// Reset drops everything, the completed flag included.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string][]byte)
	s.completed = false
	return nil
}

// Has reports whether a per-session field is currently persisted.
func (s *MemoryStore) Has(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fields[field]
	return ok
}
