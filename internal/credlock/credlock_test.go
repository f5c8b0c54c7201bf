package credlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableExclusiveAccess(t *testing.T) {
	tbl := NewTable(false)
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tbl.Acquire(context.Background(), "cred-a")
			require.NoError(t, err)
			defer release()
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestTableFIFOOrder(t *testing.T) {
	tbl := NewTable(false)
	release, err := tbl.Acquire(context.Background(), "cred-b")
	require.NoError(t, err)

	order := make([]int, 0, 3)
	var mu sync.Mutex
	var wg sync.WaitGroup
	started := make(chan struct{}, 3)

	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			r, err := tbl.Acquire(context.Background(), "cred-b")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}()
		<-started
		time.Sleep(5 * time.Millisecond) // let each goroutine enqueue in order
	}

	release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTableDisabledBypassesLock(t *testing.T) {
	tbl := NewTable(true)
	r1, err := tbl.Acquire(context.Background(), "cred-c")
	require.NoError(t, err)
	r2, err := tbl.Acquire(context.Background(), "cred-c")
	require.NoError(t, err)
	r1()
	r2()
}

func TestTableAcquireContextCancel(t *testing.T) {
	tbl := NewTable(false)
	release, err := tbl.Acquire(context.Background(), "cred-d")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tbl.Acquire(ctx, "cred-d")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingWindowLimiter(t *testing.T) {
	lim := NewSlidingWindowLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	assert.True(t, lim.AllowAt("key", now))
	assert.True(t, lim.AllowAt("key", now.Add(time.Second)))
	assert.False(t, lim.AllowAt("key", now.Add(2*time.Second)))
	assert.True(t, lim.AllowAt("key", now.Add(61*time.Second)))
}

func TestConcurrencyLimiter(t *testing.T) {
	lim := NewConcurrencyLimiter(1)
	release, ok := lim.TryAcquire("k")
	assert.True(t, ok)
	_, ok2 := lim.TryAcquire("k")
	assert.False(t, ok2)
	release()
	_, ok3 := lim.TryAcquire("k")
	assert.True(t, ok3)
}
