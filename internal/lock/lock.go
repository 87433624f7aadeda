package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrLocked = errors.New("lock already held")

// Locker grants exclusive, non-blocking ownership of a key.
type Locker interface {
	// Acquire fails with ErrLocked when another holder owns key.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Memory serializes holders within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: map[string]struct{}{}}
}

func (m *Memory) Acquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
