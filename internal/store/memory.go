package store

import (
	"context"
	"sync"
	"time"

	"whisper.relay/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps whispers in process memory. It is meant for local runs
// and tests; nothing survives a restart.
type MemoryStore struct {
	whispers map[string]*models.Whisper
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		whispers: make(map[string]*models.Whisper),
	}
}

func (s *MemoryStore) Create(ctx context.Context, w *models.Whisper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.whispers[w.ID]; ok {
		return ErrDuplicate
	}
	s.whispers[w.ID] = clone(w)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Whisper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.whispers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(w), nil
}

func (s *MemoryStore) MarkOpened(ctx context.Context, id string, openerID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.whispers[id]
	if !ok {
		return false, ErrNotFound
	}
	if w.OpenedAt != nil {
		return false, nil
	}

	at = at.UTC()
	w.OpenedAt = &at
	w.OpenedBy = &openerID
	return true, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op; the whispers live as long as the store value.
func (s *MemoryStore) Close() error {
	return nil
}

// clone copies w so callers never share the stored pointers.
func clone(w *models.Whisper) *models.Whisper {
	c := *w
	if w.OpenedAt != nil {
		at := *w.OpenedAt
		c.OpenedAt = &at
	}
	if w.OpenedBy != nil {
		by := *w.OpenedBy
		c.OpenedBy = &by
	}
	return &c
}
