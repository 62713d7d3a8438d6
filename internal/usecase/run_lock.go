package usecase

import (
	"context"
	"fmt"
	"sync"
)

// RunLocker serializes agent runs per principal. Two concurrent Run calls
// for the same principal would interleave transcript appends, so the
// second waits for the first.
type RunLocker struct {
	mu    sync.Mutex
	locks map[string]*runMutex
}

type runMutex struct {
	mu       sync.Mutex
	refCount int
}

func NewRunLocker() *RunLocker {
	return &RunLocker{
		locks: make(map[string]*runMutex),
	}
}

// Lock acquires the lock for the given principal. It blocks until the
// lock is acquired or the context is cancelled. Returns an unlock function
// that MUST be called when the run is complete.
func (rl *RunLocker) Lock(ctx context.Context, principal string) (unlock func(), err error) {
	rl.mu.Lock()
	rm, ok := rl.locks[principal]
	if !ok {
		rm = &runMutex{}
		rl.locks[principal] = rm
	}
	rm.refCount++
	rl.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		rm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() {
			rm.mu.Unlock()
			rl.mu.Lock()
			rm.refCount--
			if rm.refCount == 0 {
				delete(rl.locks, principal)
			}
			rl.mu.Unlock()
		}, nil

	case <-ctx.Done():
		// The acquiring goroutine will still obtain the mutex eventually.
		// Release it as soon as that happens so the lock is never stranded.
		go func() {
			<-acquired
			rm.mu.Unlock()
			rl.mu.Lock()
			rm.refCount--
			if rm.refCount == 0 {
				delete(rl.locks, principal)
			}
			rl.mu.Unlock()
		}()
		return nil, fmt.Errorf("run lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of principals with active or pending
// locks. Intended for testing.
func (rl *RunLocker) ActiveCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.locks)
}
