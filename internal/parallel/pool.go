package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Result is the outcome of one submitted job.
type Result[T any] struct {
	Key   string
	Value T
	Error error
	// Skipped is set when the job never ran because the pool was cancelled
	// first. Error then holds the cancellation cause.
	Skipped  bool
	Duration time.Duration
}

// WorkerPool runs keyed jobs with bounded concurrency.
type WorkerPool[T any] struct {
	maxWorkers int
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	mu         sync.Mutex
	results    []Result[T]
	errors     []error
	failFast   bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool with bounded concurrency.
// If maxWorkers is 0, unlimited workers are allowed (bounded by submitted jobs).
// If failFast is true, the context will be cancelled on the first error.
func NewWorkerPool[T any](ctx context.Context, maxWorkers int, failFast bool) *WorkerPool[T] {
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool[T]{
		maxWorkers: maxWorkers,
		failFast:   failFast,
		ctx:        ctx,
		cancel:     cancel,
		results:    make([]Result[T], 0),
	}
	if maxWorkers > 0 {
		p.sem = semaphore.NewWeighted(int64(maxWorkers))
	}
	return p
}

// Submit schedules fn under key. fn receives the pool context, which is
// cancelled by Cancel, by Wait, or by the first error in fail-fast mode.
// Jobs that cannot start before cancellation are reported as skipped.
func (p *WorkerPool[T]) Submit(key string, fn func(ctx context.Context) (T, error)) {
	p.mu.Lock()
	slot := len(p.results)
	p.results = append(p.results, Result[T]{Key: key})
	p.mu.Unlock()

	if err := p.ctx.Err(); err != nil {
		p.skip(slot, err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.sem != nil {
			if err := p.sem.Acquire(p.ctx, 1); err != nil {
				p.skip(slot, err)
				return
			}
			defer p.sem.Release(1)
		}
		if err := p.ctx.Err(); err != nil {
			p.skip(slot, err)
			return
		}

		start := time.Now()
		value, err := fn(p.ctx)
		p.finish(slot, value, err, time.Since(start))
	}()
}

func (p *WorkerPool[T]) skip(slot int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &p.results[slot]
	r.Skipped = true
	r.Error = cause
	p.errors = append(p.errors, fmt.Errorf("%s: skipped: %w", r.Key, cause))
}

func (p *WorkerPool[T]) finish(slot int, value T, err error, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &p.results[slot]
	r.Value = value
	r.Error = err
	r.Duration = d
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("%s: %w", r.Key, err))
		if p.failFast {
			p.cancel()
		}
	}
}

// Wait waits for all submitted jobs and returns one result per job in
// submission order, plus the keyed errors in the order they happened.
func (p *WorkerPool[T]) Wait() ([]Result[T], []error) {
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]Result[T], len(p.results))
	copy(results, p.results)
	errs := make([]error, len(p.errors))
	copy(errs, p.errors)
	return results, errs
}

// Results returns a snapshot of the results without waiting. Jobs still
// running have a zero Value and no Error.
func (p *WorkerPool[T]) Results() []Result[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]Result[T], len(p.results))
	copy(results, p.results)
	return results
}

// Cancel cancels all pending work in the pool.
func (p *WorkerPool[T]) Cancel() {
	p.cancel()
}
