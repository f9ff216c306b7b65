package engine

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// keyedLock serializes evaluations per service without blocking: a second
// caller for the same key is told to back off instead of queueing.
type keyedLock struct {
	mu       sync.Mutex
	inflight map[snowflake.ID]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{inflight: make(map[snowflake.ID]struct{})}
}

func (l *keyedLock) tryAcquire(key snowflake.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inflight[key]; busy {
		return false
	}
	l.inflight[key] = struct{}{}
	return true
}

func (l *keyedLock) release(key snowflake.ID) {
	l.mu.Lock()
	delete(l.inflight, key)
	l.mu.Unlock()
}
