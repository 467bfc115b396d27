package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoutLocksSerializesSameScout(t *testing.T) {
	locks := NewScoutLocks()

	var (
		mu        sync.Mutex
		order     []int
		holders   int
		maxHolder int
		wg        sync.WaitGroup
		started   = make(chan struct{})
	)

	for i := 0; i < 3; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			lock := locks.Lock("scout-1")
			defer lock.Unlock()

			mu.Lock()
			order = append(order, n)
			holders++
			maxHolder = max(maxHolder, holders)
			mu.Unlock()

			if n == 0 {
				close(started)
			}

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
		}(i)
	}

	wg.Wait()

	require.Len(t, order, 3)
	require.Equal(t, 1, maxHolder, "at most one goroutine may hold the scout lock at a time")
}

func TestScoutLocksDistinctScoutsDoNotBlock(t *testing.T) {
	locks := NewScoutLocks()

	lockA := locks.Lock("scout-a")
	defer lockA.Unlock()

	done := make(chan struct{})

	go func() {
		lockB := locks.Lock("scout-b")
		defer lockB.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different scoutID should not block")
	}
}

func TestScoutLocksReturnsSameMutexForSameScoutID(t *testing.T) {
	locks := NewScoutLocks()

	first := locks.Lock("scout-shared")
	first.Unlock()

	second := locks.Lock("scout-shared")
	second.Unlock()

	require.Same(t, first, second)
}
