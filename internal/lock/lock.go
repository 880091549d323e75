package lock

import (
	"context"
	"sync"
)

// Locker serializes writers sharing a key. Lock blocks until the key is
// free or ctx is done; the returned func releases it and is safe to call
// more than once, also concurrently.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Local is an in-process keyed mutex for single-node deployments
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

// Lock acquires key
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *Local) release(key string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of keys with a holder or waiter
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
