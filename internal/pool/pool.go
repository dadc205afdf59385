package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed    = errors.New("pool is closed")
	ErrCancelled = errors.New("task cancelled")
)

// Task is one unit of work executed by the pool.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the tagged result of a task: either Value or Err is meaningful.
type Outcome[T any] struct {
	Value T
	Err   error
}

func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

// Cancelled reports whether the task never completed because the pool was
// cancelled or its deadline expired.
func (o Outcome[T]) Cancelled() bool {
	return errors.Is(o.Err, ErrCancelled)
}

// Handle tracks one submitted task.
type Handle[T any] struct {
	seq     int
	done    chan struct{}
	outcome Outcome[T]
}

// Seq is the submission index of the task, starting at zero.
func (h *Handle[T]) Seq() int {
	return h.seq
}

// Await blocks until the task has an outcome.
func (h *Handle[T]) Await() Outcome[T] {
	<-h.done
	return h.outcome
}

// Done is closed once the outcome is available.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

type Stats struct {
	Submitted int
	Succeeded int
	Failed    int
	Cancelled int
}

type job[T any] struct {
	handle *Handle[T]
	task   Task[T]
}

// Pool runs submitted tasks on a fixed set of worker goroutines. Tasks start
// in submission order and submission never blocks on running work.
type Pool[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	workers int

	mu     sync.Mutex
	ready  *sync.Cond
	queue  []job[T]
	closed bool
	seq    int

	succeeded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// New creates a pool bound to ctx and starts its workers. workers <= 0
// selects runtime.NumCPU(). The pool must be released with Shutdown or Close.
func New[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		ctx:     poolCtx,
		cancel:  cancel,
		workers: workers,
	}
	p.ready = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool[T]) Workers() int {
	return p.workers
}

// Submit queues task and returns its handle.
func (p *Pool[T]) Submit(task Task[T]) (*Handle[T], error) {
	if task == nil {
		return nil, fmt.Errorf("task is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	h := &Handle[T]{seq: p.seq, done: make(chan struct{})}
	p.seq++
	p.queue = append(p.queue, job[T]{handle: h, task: task})
	p.ready.Signal()
	return h, nil
}

// work drains the queue until the pool is closed and nothing is left.
func (p *Pool[T]) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.ready.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.queue[0] = job[T]{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.execute(next.handle, next.task)
	}
}

func (p *Pool[T]) execute(h *Handle[T], task Task[T]) {
	defer close(h.done)

	if err := p.ctx.Err(); err != nil {
		h.outcome = Outcome[T]{Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
		p.cancelled.Add(1)
		return
	}

	value, err := run(p.ctx, task)
	switch {
	case err == nil:
		h.outcome = Outcome[T]{Value: value}
		p.succeeded.Add(1)
	case p.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		h.outcome = Outcome[T]{Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
		p.cancelled.Add(1)
	default:
		h.outcome = Outcome[T]{Err: err}
		p.failed.Add(1)
	}
}

func run[T any](ctx context.Context, task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Shutdown stops accepting work and waits for every submitted task.
func (p *Pool[T]) Shutdown() Stats {
	p.stop()
	p.wg.Wait()
	p.cancel()
	return p.Stats()
}

// Close cancels queued and running work, then waits like Shutdown. Tasks that
// had not started are reported as cancelled.
func (p *Pool[T]) Close() Stats {
	p.cancel()
	p.stop()
	p.wg.Wait()
	return p.Stats()
}

func (p *Pool[T]) stop() {
	p.mu.Lock()
	p.closed = true
	p.ready.Broadcast()
	p.mu.Unlock()
}

func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	submitted := p.seq
	p.mu.Unlock()
	return Stats{
		Submitted: submitted,
		Succeeded: int(p.succeeded.Load()),
		Failed:    int(p.failed.Load()),
		Cancelled: int(p.cancelled.Load()),
	}
}
