package lock

import (
	"sync"
	"testing"
	"time"
)

func TestWithLockSerializesSamePath(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	var order []string

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.WithLock("/a", func(string) error {
			mu.Lock()
			order = append(order, "start-1")
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			order = append(order, "end-1")
			mu.Unlock()
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		_ = r.WithLock("/a", func(string) error {
			mu.Lock()
			order = append(order, "start-2")
			mu.Unlock()
			return nil
		})
	}()
	wg.Wait()

	if len(order) != 3 || order[0] != "start-1" || order[1] != "end-1" || order[2] != "start-2" {
		t.Errorf("lock did not serialize: %v", order)
	}
}

func TestWithLockDifferentPathsConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	release := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.WithLock("/a", func(string) error {
			<-release
			return nil
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = r.WithLock("/b", func(string) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on /b blocked by an unrelated lock on /a")
	}

	close(release)
	wg.Wait()
}

func TestRegistryCleansUpEntries(t *testing.T) {
	r := NewRegistry()
	_ = r.WithLock("/a", func(string) error { return nil })

	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	if n != 0 {
		t.Errorf("registry retained %d entries after unlock, want 0", n)
	}
}

func TestLockTokenNonEmpty(t *testing.T) {
	r := NewRegistry()
	token, unlock := r.Lock("/x")
	defer unlock()
	if token == "" {
		t.Error("Lock returned empty token")
	}
}
