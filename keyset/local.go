package keyset

import (
	"context"
	"sync"
)

// Local is an in-process registry guarded by a mutex.
type Local struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

var _ KeySet = (*Local)(nil)

func NewLocal() *Local {
	return &Local{keys: make(map[string]struct{})}
}

func (s *Local) Add(_ context.Context, key string) error {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Local) Drain(_ context.Context) ([]string, error) {
	s.mu.Lock()
	drained := s.keys
	s.keys = make(map[string]struct{}, len(drained))
	s.mu.Unlock()

	out := make([]string, 0, len(drained))
	for k := range drained {
		out = append(out, k)
	}
	return out, nil
}

// Len reports the number of registered keys.
func (s *Local) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
