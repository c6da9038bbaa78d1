package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run hands items to numWorkers goroutines in slice order and waits for them.
// With a single worker items are processed strictly in order. Items not yet
// started when ctx is cancelled are skipped. The returned errors are in item order.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	if len(items) == 0 {
		return nil
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	var wg sync.WaitGroup
	taskChan := make(chan int)
	results := make([]error, len(items))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if ctx.Err() != nil {
					continue
				}
				results[idx] = workerFunc(ctx, items[idx])
			}
		}()
	}

OUT:
	for idx := range items {
		select {
		case taskChan <- idx:
		case <-ctx.Done():
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	var allErrors []error
	for _, err := range results {
		if err != nil {
			allErrors = append(allErrors, err)
		}
	}
	return allErrors
}
