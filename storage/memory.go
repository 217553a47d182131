package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-feed/types"
)

// MemoryStore keeps the token in process memory only. Nothing survives a
// restart; useful for tests and explicitly ephemeral sessions.
type MemoryStore struct {
	logger  types.Logger
	token   string
	mu      sync.RWMutex
	running int32
}

func NewMemoryStore(logger types.Logger) *MemoryStore {
	return &MemoryStore{logger: logger}
}

func (s *MemoryStore) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrManagerAlreadyRunning
	}
	return nil
}

func (s *MemoryStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrManagerNotRunning
	}
	return nil
}

func (s *MemoryStore) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", types.ErrStorageSlotEmpty
	}
	return s.token, nil
}

func (s *MemoryStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return types.ErrTokenEmpty
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
