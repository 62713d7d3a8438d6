package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunLockerMutualExclusion(t *testing.T) {
	rl := NewRunLocker()
	var counter, max int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := rl.Lock(context.Background(), "alice")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("max concurrent holders = %d, want 1", max)
	}
	if rl.ActiveCount() != 0 {
		t.Errorf("active count after release = %d, want 0", rl.ActiveCount())
	}
}

func TestRunLockerDifferentPrincipalsDoNotBlock(t *testing.T) {
	rl := NewRunLocker()

	unlockA, err := rl.Lock(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Lock alice: %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := rl.Lock(context.Background(), "bob")
		if err != nil {
			t.Errorf("Lock bob: %v", err)
			return
		}
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bob's lock blocked on alice's")
	}
}

func TestRunLockerContextCancel(t *testing.T) {
	rl := NewRunLocker()

	unlock, err := rl.Lock(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rl.Lock(ctx, "alice"); err == nil {
		t.Fatal("expected context error while lock is held")
	}

	unlock()

	// The lock must be usable again after the cancelled attempt cleans up.
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	unlock2, err := rl.Lock(ctx2, "alice")
	if err != nil {
		t.Fatalf("lock stranded after cancelled attempt: %v", err)
	}
	unlock2()
}
