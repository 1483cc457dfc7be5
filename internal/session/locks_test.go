package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}

func TestBackoffBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialWait: 10 * time.Millisecond, MaxWait: 40 * time.Millisecond, Multiplier: 2}
	for attempt, base := range []time.Duration{10, 20, 40, 40, 40} {
		base *= time.Millisecond
		w := p.backoff(attempt)
		assert.GreaterOrEqual(t, w, base*8/10)
		assert.LessOrEqual(t, w, base*12/10)
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	p := RetryPolicy{}.normalized()
	assert.Equal(t, DefaultRetryPolicy(), p)

	p = RetryPolicy{MaxAttempts: 4}.normalized()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, DefaultRetryPolicy().MaxWait, p.MaxWait)
	assert.Greater(t, p.backoff(3), p.backoff(0))

	p = RetryPolicy{InitialWait: 50 * time.Millisecond, MaxWait: 10 * time.Millisecond}.normalized()
	assert.Equal(t, 50*time.Millisecond, p.MaxWait)
}
