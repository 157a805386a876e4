package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// localSlot is the semaphore of one key plus the number of callers holding
// or waiting on it. The entry is dropped when that number reaches zero.
type localSlot struct {
	sem  chan struct{}
	refs int
}

type localLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

// NewLocalLocker serializes callers inside this process only. It is used
// when no Redis is configured.
func NewLocalLocker(wait time.Duration) Locker {
	return &localLocker{
		slots: make(map[string]*localSlot),
		wait:  wait,
	}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	slot := l.acquireSlot(key)
	defer l.releaseSlot(key, slot)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.sem <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

func (l *localLocker) acquireSlot(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *localLocker) releaseSlot(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
