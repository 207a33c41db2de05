// Package parallel provides the worker pool used to fit ensemble members and
// evaluate cross-validation folds concurrently.
//
// Work items are fanned out to a fixed number of goroutines and the results
// are collected back in input order, so callers see deterministic output
// regardless of scheduling. Each work item must only touch its own data.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool. numWorkers <= 0 uses one worker
// per CPU.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// NumWorkers returns the number of goroutines the pool fans out to.
func (wp *WorkerPool) NumWorkers() int {
	return wp.numWorkers
}

// ProcessIndexed executes work items in parallel while preserving order.
// Items not started before Close leave a zero result.
func ProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) R,
) []R {
	if len(items) == 0 {
		return nil
	}

	itemCh := make(chan indexedItem[T], len(items))
	resultCh := make(chan indexedResult[R], len(items))

	workers := wp.numWorkers
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				select {
				case <-wp.ctx.Done():
					return
				default:
					resultCh <- indexedResult[R]{
						index:  item.index,
						result: worker(item.index, item.value),
					}
				}
			}
		}()
	}

	go func() {
		defer close(itemCh)
		for i, item := range items {
			select {
			case <-wp.ctx.Done():
				return
			case itemCh <- indexedItem[T]{index: i, value: item}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]R, len(items))
	for result := range resultCh {
		results[result.index] = result.result
	}

	return results
}

// TryProcessIndexed is ProcessIndexed for fallible work. It returns the
// error of the lowest-indexed failing item, or an error when the pool was
// closed before every item ran.
func TryProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) (R, error),
) ([]R, error) {
	type outcome struct {
		value R
		err   error
		done  bool
	}

	outcomes := ProcessIndexed(wp, items, func(i int, item T) outcome {
		v, err := worker(i, item)
		return outcome{value: v, err: err, done: true}
	})

	results := make([]R, len(items))
	for i, o := range outcomes {
		if !o.done {
			return nil, context.Canceled
		}
		if o.err != nil {
			return nil, o.err
		}
		results[i] = o.value
	}
	return results, nil
}

// Close shuts down the worker pool
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// indexedItem holds an item with its index
type indexedItem[T any] struct {
	index int
	value T
}

// indexedResult holds a result with its index
type indexedResult[R any] struct {
	index  int
	result R
}
