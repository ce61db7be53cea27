// Package pool implements a work-stealing thread pool (spec component
// C2): N worker goroutines, each with its own double-ended deque, that
// steal from each other when their own queue runs dry. There is no
// off-the-shelf work-stealing deque in the dependency surface this
// project draws from, so the scheduler is hand-built on stdlib
// sync primitives (see DESIGN.md).
package pool

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dlogcover/dlogcover/internal/debug"
	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

// MaxWorkers caps the worker count regardless of hardware concurrency.
const MaxWorkers = 64

// maxStealAttempts is how many victims a worker tries before parking.
const maxStealAttempts = 4

// Task is a unit of work submitted to the pool.
type Task func(ctx context.Context)

// Future is returned by Submit; callers that care about completion or
// panics block on Wait.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has run and returns any panic recovered
// from it, wrapped as an error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

type taskEntry struct {
	task   Task
	future *Future
}

// deque is a simple mutex-guarded double-ended queue of taskEntry.
// Owners pop from the back (LIFO); thieves pop from the front (FIFO).
type deque struct {
	mu    sync.Mutex
	items []taskEntry
}

func (d *deque) pushBack(e taskEntry) {
	d.mu.Lock()
	d.items = append(d.items, e)
	d.mu.Unlock()
}

func (d *deque) popBack() (taskEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return taskEntry{}, false
	}
	e := d.items[n-1]
	d.items = d.items[:n-1]
	return e, true
}

func (d *deque) popFront() (taskEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return taskEntry{}, false
	}
	e := d.items[0]
	d.items = d.items[1:]
	return e, true
}

// Stats reports the pool's lifetime counters.
type Stats struct {
	TasksExecuted   int64
	StealAttempts   int64
	SuccessfulSteal int64
}

// Pool is a fixed-size work-stealing scheduler.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	workers []*deque
	wg      sync.WaitGroup

	nextIndex int64 // atomic round-robin counter

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool

	tasksExecuted   int64
	stealAttempts   int64
	successfulSteal int64

	// warmup bounds how many goroutines may concurrently construct
	// per-worker parser state (e.g. tree-sitter parsers) during startup;
	// its size is the worker count.
	warmup *semaphore.Weighted
}

// New constructs a pool with n workers, clamped to [1, MaxWorkers].
// n<=0 defaults to runtime.NumCPU().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		workers: make([]*deque, n),
		warmup:  semaphore.NewWeighted(int64(n)),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := range p.workers {
		p.workers[i] = &deque{}
	}

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.workerLoop(i)
	}
	return p
}

// Submit places task on the queue next_index mod N and returns a future
// for it. Fails with PoolStoppedError after Shutdown.
func (p *Pool) Submit(task Task) (*Future, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, &dlerrors.PoolStoppedError{}
	}

	idx := atomic.AddInt64(&p.nextIndex, 1) - 1
	worker := int(idx) % len(p.workers)

	future := &Future{done: make(chan struct{})}
	p.workers[worker].pushBack(taskEntry{task: task, future: future})

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	return future, nil
}

// SubmitBatch places tasks across queues starting at the current
// next_index, consecutively, to minimize contention on any one deque.
func (p *Pool) SubmitBatch(tasks []Task) ([]*Future, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, &dlerrors.PoolStoppedError{}
	}

	futures := make([]*Future, len(tasks))
	start := atomic.AddInt64(&p.nextIndex, int64(len(tasks))) - int64(len(tasks))

	for i, task := range tasks {
		worker := int(start+int64(i)) % len(p.workers)
		future := &Future{done: make(chan struct{})}
		futures[i] = future
		p.workers[worker].pushBack(taskEntry{task: task, future: future})
	}

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	return futures, nil
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	own := p.workers[id]

	for {
		entry, ok := own.popBack()
		if !ok {
			entry, ok = p.steal(id)
		}

		if !ok {
			p.mu.Lock()
			for {
				if p.stopped {
					p.mu.Unlock()
					return
				}
				// Re-check both queues under the lock's happens-before
				// edge before parking, so a task submitted between our
				// failed pop and Lock isn't missed.
				if p.anyWorkAvailable(id) {
					break
				}
				p.cond.Wait()
			}
			p.mu.Unlock()
			continue
		}

		p.runTask(entry)
		atomic.AddInt64(&p.tasksExecuted, 1)
	}
}

func (p *Pool) anyWorkAvailable(id int) bool {
	for i, w := range p.workers {
		if i == id {
			continue
		}
		w.mu.Lock()
		n := len(w.items)
		w.mu.Unlock()
		if n > 0 {
			return true
		}
	}
	own := p.workers[id]
	own.mu.Lock()
	n := len(own.items)
	own.mu.Unlock()
	return n > 0
}

// steal attempts up to maxStealAttempts random victims' front of queue.
func (p *Pool) steal(id int) (taskEntry, bool) {
	n := len(p.workers)
	if n <= 1 {
		return taskEntry{}, false
	}
	for i := 0; i < maxStealAttempts; i++ {
		atomic.AddInt64(&p.stealAttempts, 1)
		victim := rand.Intn(n)
		if victim == id {
			continue
		}
		if entry, ok := p.workers[victim].popFront(); ok {
			atomic.AddInt64(&p.successfulSteal, 1)
			return entry, true
		}
	}
	return taskEntry{}, false
}

func (p *Pool) runTask(entry taskEntry) {
	defer close(entry.future.done)
	defer func() {
		if r := recover(); r != nil {
			debug.LogPool("task panicked: %v", r)
			entry.future.err = dlerrors.NewAnalysisError("", "", "pool_task", panicError{r})
		}
	}()
	entry.task(p.ctx)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "task panicked" }

// AcquireWarmup bounds concurrent warm-up work (e.g. constructing one
// parser per worker at startup) to the pool's worker count.
func (p *Pool) AcquireWarmup(ctx context.Context) error {
	return p.warmup.Acquire(ctx, 1)
}

// ReleaseWarmup releases a warm-up slot acquired via AcquireWarmup.
func (p *Pool) ReleaseWarmup() {
	p.warmup.Release(1)
}

// Shutdown stops the pool. Idempotent: a second call is a no-op.
// After Shutdown returns, Submit fails with PoolStoppedError.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Workers reports the pool's fixed worker count, for callers that need
// to size a warm-up pass to match it.
func (p *Pool) Workers() int {
	return len(p.workers)
}

// Stats reports the pool's lifetime counters.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksExecuted:   atomic.LoadInt64(&p.tasksExecuted),
		StealAttempts:   atomic.LoadInt64(&p.stealAttempts),
		SuccessfulSteal: atomic.LoadInt64(&p.successfulSteal),
	}
}
