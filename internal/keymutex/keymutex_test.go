package keymutex

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	m := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("pair")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if m.Len() != 0 {
		t.Fatalf("entries = %d, want 0", m.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	m := New()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}

func TestUnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	m := New()
	unlock := m.Lock("a")
	unlock()
	unlock()
	if m.Len() != 0 {
		t.Fatalf("entries = %d, want 0", m.Len())
	}
}
