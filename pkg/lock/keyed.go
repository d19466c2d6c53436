package lock

import (
	"context"
	"sync"
	"time"
)

// Keyed serializes writers per key. A section's capacity counters must
// only ever see one writer at a time; acquisition waits at most the
// configured timeout so a contended request fails fast instead of
// hanging.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewKeyed constructs an empty keyed lock set.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]chan struct{})}
}

// Acquire takes the lock for key, waiting up to timeout. It returns a
// release func on success and false when the wait was exhausted or the
// context was cancelled first.
func (k *Keyed) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), bool) {
	ch := k.channel(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (k *Keyed) channel(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}
