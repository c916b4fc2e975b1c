package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/metriq/internal/domain"
)

func TestGuardSerializesSameKey(t *testing.T) {
	guard := NewGuard(time.Second)
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "metric-a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := guard.Acquire(ctx, "metric-a")
		require.NoError(t, err)
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never granted after release")
	}
}

func TestGuardIndependentKeys(t *testing.T) {
	guard := NewGuard(time.Second)
	ctx := context.Background()

	releaseA, err := guard.Acquire(ctx, "metric-a")
	require.NoError(t, err)
	defer releaseA()

	// A held key must not block a different key.
	releaseB, err := guard.Acquire(ctx, "metric-b")
	require.NoError(t, err)
	releaseB()
}

func TestGuardFIFOOrder(t *testing.T) {
	guard := NewGuard(5 * time.Second)
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "metric-a")
	require.NoError(t, err)

	const waiters = 5
	var mu sync.Mutex
	var order []int
	ready := make(chan struct{}, waiters)
	done := make(chan struct{}, waiters)

	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			// Stagger arrivals so queue order is deterministic.
			time.Sleep(time.Duration(i*20) * time.Millisecond)
			ready <- struct{}{}
			r, err := guard.Acquire(ctx, "metric-a")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
			done <- struct{}{}
		}()
	}

	for i := 0; i < waiters; i++ {
		<-ready
	}
	time.Sleep(150 * time.Millisecond)
	release()
	for i := 0; i < waiters; i++ {
		<-done
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, order, "waiters must be granted in arrival order")
}

func TestGuardTimeout(t *testing.T) {
	guard := NewGuard(50 * time.Millisecond)
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "metric-a")
	require.NoError(t, err)
	defer release()

	_, err = guard.Acquire(ctx, "metric-a")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrGuardTimeout)
}

func TestGuardContextCancellation(t *testing.T) {
	guard := NewGuard(time.Minute)

	release, err := guard.Acquire(context.Background(), "metric-a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = guard.Acquire(ctx, "metric-a")
	require.ErrorIs(t, err, domain.ErrGuardTimeout)
}

func TestGuardAbandonedWaiterNeverGranted(t *testing.T) {
	guard := NewGuard(time.Minute)
	background := context.Background()

	release, err := guard.Acquire(background, "metric-a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(background)
	abandoned := make(chan error, 1)
	go func() {
		_, err := guard.Acquire(ctx, "metric-a")
		abandoned <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-abandoned, domain.ErrGuardTimeout)

	// The abandoned waiter must not hold a grant: the next waiter gets the
	// key as soon as the holder releases.
	release()
	r, err := guard.Acquire(background, "metric-a")
	require.NoError(t, err)
	r()
}

func TestGuardConcurrentStress(t *testing.T) {
	guard := NewGuard(5 * time.Second)
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	const goroutines = 50

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := guard.Acquire(ctx, "shared")
			if errors.Is(err, domain.ErrGuardTimeout) {
				return
			}
			require.NoError(t, err)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, goroutines, counter, "every waiter should complete within the bound")
}
