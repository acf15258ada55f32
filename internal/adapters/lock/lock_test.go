package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "resources:RAW")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks, "entries are dropped once unused")
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "node:aa")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "node:bb")
	require.NoError(t, err)
	unlockB()
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	l := NewMemoryLocker()

	unlock, err := l.Lock(context.Background(), "mesh:meshA")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "mesh:meshA")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // releasing twice is harmless

	again, err := l.Lock(context.Background(), "mesh:meshA")
	require.NoError(t, err)
	again()
}

func TestNewRedisLocker_Unreachable(t *testing.T) {
	_, err := NewRedisLocker("127.0.0.1:1", "", 0, time.Minute)
	assert.Error(t, err)
}

func runKeepAlive(stop chan struct{}, extend func(context.Context) (bool, error)) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, 5*time.Millisecond, "metrics:rtt:HOURLY", extend)
	}()
	return done
}

func closed(ch chan struct{}) func() bool {
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

func TestKeepAlive_RenewsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := runKeepAlive(stop, func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	close(stop)
	assert.Eventually(t, closed(done), time.Second, time.Millisecond)
}

func TestKeepAlive_RetriesFailedRenewal(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := runKeepAlive(stop, func(ctx context.Context) (bool, error) {
		if calls.Add(1) == 1 {
			return false, errors.New("i/o timeout")
		}
		return true, nil
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.False(t, closed(done)())
	close(stop)
	assert.Eventually(t, closed(done), time.Second, time.Millisecond)
}

func TestKeepAlive_StopsWhenLeaseIsLost(t *testing.T) {
	var calls atomic.Int32
	done := runKeepAlive(make(chan struct{}), func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	})

	assert.Eventually(t, closed(done), time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
