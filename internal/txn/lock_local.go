package txn

import (
	"context"
	"sync"
)

// LocalLockManager serializes by key within a single process using an
// in-memory mutex per key. Used by tests and by single-instance
// deployments that don't run etcd.
type LocalLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLockManager() *LocalLockManager {
	return &LocalLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *LocalLockManager) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	m.mu.Lock()
	keyLock, ok := m.locks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		m.locks[key] = keyLock
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		keyLock.Lock()
		close(done)
	}()

	select {
	case <-done:
		return func(context.Context) error {
			keyLock.Unlock()
			return nil
		}, nil
	case <-ctx.Done():
		go func() { <-done; keyLock.Unlock() }()
		return nil, ctx.Err()
	}
}
