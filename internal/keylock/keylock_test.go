package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSameKeySerializes(t *testing.T) {
	t.Parallel()

	var s Set[int]
	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock(1)
			defer unlock()

			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, s.Len())
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	t.Parallel()

	var s Set[string]
	unlockA := s.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := s.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	var s Set[int]
	unlock := s.Lock(5)
	unlock()
	unlock()
	assert.Zero(t, s.Len())

	// The key can be locked again.
	s.Lock(5)()
}
