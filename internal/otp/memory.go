package otp

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// MemoryStore keeps challenges in process memory. Pending challenges are lost
// on restart. One mutex guards the map, which makes every Request and Verify
// linearizable.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	clock      clockwork.Clock
	cfg        Config
	generate   func() (string, error)
}

func NewMemoryStore(clock clockwork.Clock, cfg Config) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		challenges: make(map[string]*Challenge),
		clock:      clock,
		cfg:        cfg.withDefaults(),
		generate:   GenerateCode,
	}
}

func (s *MemoryStore) Request(_ context.Context, phone string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[phone] = &Challenge{
		Code:      code,
		ExpiresAt: s.clock.Now().Add(s.cfg.TTL),
	}
	return code, nil
}

func (s *MemoryStore) Verify(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[phone]
	if !ok {
		return ErrNotFound
	}
	keep, err := c.attempt(s.clock.Now(), code, s.cfg.MaxAttempts)
	if !keep {
		delete(s.challenges, phone)
	}
	return err
}
