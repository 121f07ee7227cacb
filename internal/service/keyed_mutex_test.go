package service

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexBlocksSameKey(t *testing.T) {
	km := newKeyedMutex()
	km.Lock("payment:1")

	acquired := make(chan struct{})
	go func() {
		km.Lock("payment:1")
		close(acquired)
		km.Unlock("payment:1")
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key must block")
	case <-time.After(50 * time.Millisecond):
	}

	km.Unlock("payment:1")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released to the waiter")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	km.Lock("payment:1")
	defer km.Unlock("payment:1")

	done := make(chan struct{})
	go func() {
		km.Lock("payment:2")
		km.Unlock("payment:2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not contend")
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("payment:7")
			km.Unlock("payment:7")
		}()
	}
	wg.Wait()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("expected no retained entries, got %d", len(km.locks))
	}
}
