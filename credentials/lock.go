package credentials

import (
	"context"
	"sync"
)

// Locker serialises refresh attempts for one key, including the provider call.
type Locker interface {
	Lock(ctx context.Context, key Key) (unlock func(), err error)
}

// MemoryLocker is a per-key lock for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (m *MemoryLocker) Lock(ctx context.Context, key Key) (func(), error) {
	name := key.String()

	m.mu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[name] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				m.release(name, l)
			})
		}, nil
	case <-ctx.Done():
		m.release(name, l)
		return nil, ctx.Err()
	}
}

func (m *MemoryLocker) release(name string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, name)
	}
}
