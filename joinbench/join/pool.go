package join

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// WorkerPool runs indexed tasks to completion on a bounded set of
// goroutines. Tasks are never cancelled once submitted.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// Execute runs task(i) for every i in [0, n) and waits for all of them.
// A panicking task is reported as its error. When several tasks fail the
// error of the lowest index is returned.
func (p *WorkerPool) Execute(n int, task func(i int) error) error {
	if n == 0 {
		return nil
	}

	errs := make([]error, n)
	run := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				errs[i] = fmt.Errorf("task panicked: %v", r)
			}
		}()
		errs[i] = task(i)
	}

	if p.workerCount == 1 || n == 1 {
		for i := 0; i < n; i++ {
			run(i)
		}
		return firstError(errs)
	}

	size := p.workerCount
	if n < size {
		size = n
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			run(i)
		}); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("failed to submit task: %w", err)
		}
	}
	wg.Wait()

	return firstError(errs)
}

// Chunks splits [0, n) into at most WorkerCount contiguous ranges of
// near-equal size and runs task over each.
func (p *WorkerPool) Chunks(n int, task func(chunk, from, to int) error) error {
	bounds := chunkBounds(n, p.workerCount)
	return p.Execute(len(bounds)-1, func(c int) error {
		return task(c, bounds[c], bounds[c+1])
	})
}

// WorkerCount returns the number of worker goroutines
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

func firstError(errs []error) error {
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("parallel execution failed at task %d: %w", i, err)
		}
	}
	return nil
}

// chunkBounds returns k+1 ascending bounds splitting [0, n) into k <= parts
// non-empty ranges. n == 0 yields no ranges.
func chunkBounds(n, parts int) []int {
	if n == 0 {
		return []int{0}
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	bounds := make([]int, parts+1)
	for i := 0; i <= parts; i++ {
		bounds[i] = int(int64(n) * int64(i) / int64(parts))
	}
	return bounds
}
