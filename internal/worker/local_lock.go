package worker

import (
	"context"
	"sync"
)

// LocalRunLock is the in-process RunLock used when no Redis is configured,
// e.g. a single bot process on the SQLite backend.
type LocalRunLock struct {
	mu sync.Mutex
}

func (l *LocalRunLock) Acquire(context.Context) (func(context.Context), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) { l.mu.Unlock() }, true, nil
}
