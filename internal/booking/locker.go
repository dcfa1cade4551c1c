package booking

import (
	"context"
	"sync"
)

// Locker serializes the index-touching transitions of one auditorium.
type Locker interface {
	Lock(ctx context.Context, auditoriumID string) (unlock func(), err error)
}

// LocalLocker is a Locker for a single process: one mutex per auditorium.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(auditoriumID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[auditoriumID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[auditoriumID] = ch
	}
	return ch
}

// Lock blocks until the auditorium is free or ctx ends.
func (l *LocalLocker) Lock(ctx context.Context, auditoriumID string) (func(), error) {
	ch := l.slot(auditoriumID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
