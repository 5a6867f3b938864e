package memory

import (
	"context"
	"sync"

	"branchpost/domain/core/valueobjects"
)

// RunLocker is a keyed mutex. Entries are dropped once nobody holds or waits
// for them.
type RunLocker struct {
	mu    sync.Mutex
	locks map[valueobjects.RunID]*runLock
}

type runLock struct {
	ch   chan struct{}
	refs int
}

// NewRunLocker creates a run locker
func NewRunLocker() *RunLocker {
	return &RunLocker{locks: make(map[valueobjects.RunID]*runLock)}
}

// Lock blocks until the run is held or ctx is done
func (l *RunLocker) Lock(ctx context.Context, runID valueobjects.RunID) (func(), error) {
	l.mu.Lock()
	rl, ok := l.locks[runID]
	if !ok {
		rl = &runLock{ch: make(chan struct{}, 1)}
		l.locks[runID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-rl.ch
				l.release(runID, rl)
			})
		}, nil
	case <-ctx.Done():
		l.release(runID, rl)
		return nil, ctx.Err()
	}
}

func (l *RunLocker) release(runID valueobjects.RunID, rl *runLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, runID)
	}
}
