package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habedi/monitorctl/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	var count atomic.Int64

	workerFunc := func(ctx context.Context, item int) error {
		count.Add(1)
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	errs := pool.Run(context.Background(), items, 3, workerFunc)

	assert.Empty(t, errs)
	assert.Equal(t, int64(len(items)), count.Load())
}

func TestPool_SingleWorkerKeepsOrder(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	var mu sync.Mutex
	var seen []string

	pool.Run(context.Background(), items, 1, func(ctx context.Context, item string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, item)
		return nil
	})

	assert.Equal(t, items, seen)
}

func TestPool_CollectsErrorsInItemOrder(t *testing.T) {
	items := []int{1, 2, 3, 4}

	errs := pool.Run(context.Background(), items, 4, func(ctx context.Context, item int) error {
		if item%2 == 0 {
			// Finish out of order on purpose.
			time.Sleep(time.Duration(5-item) * 5 * time.Millisecond)
			return errors.New("failed item " + string(rune('0'+item)))
		}
		return nil
	})

	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "failed item 2")
	assert.EqualError(t, errs[1], "failed item 4")
}

func TestPool_EmptyItemsAndBadWorkerCount(t *testing.T) {
	assert.Nil(t, pool.Run(context.Background(), []int{}, 4, func(ctx context.Context, item int) error {
		t.Fatal("worker must not be called")
		return nil
	}))

	var count atomic.Int64
	errs := pool.Run(context.Background(), []int{1, 2, 3}, 0, func(ctx context.Context, item int) error {
		count.Add(1)
		return nil
	})
	assert.Empty(t, errs)
	assert.Equal(t, int64(3), count.Load())
}

func TestPool_ContextCancellation(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	var processedCount atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())

	pool.Run(ctx, items, 4, func(ctx context.Context, item int) error {
		processedCount.Add(1)
		if item == 0 {
			cancel()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return nil
	})

	assert.Less(t, processedCount.Load(), int64(len(items)), "Pool should stop processing after context is cancelled")
}
