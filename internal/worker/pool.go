package worker

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/baharkarakas/transferflow/internal/metrics"
)

type task func()

// Pool runs submitted jobs on a fixed set of goroutines. Submit never blocks.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	jobs   chan task
	closed bool
	log    *slog.Logger
}

func NewPool(n, queue int, log *slog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan task, queue), log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				p.run(job)
			}
		}()
	}
	return p
}

// Submit enqueues f and reports false when the queue is full or the pool is stopped.
func (p *Pool) Submit(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		return false
	}
}

// Stop drains queued jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(job task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker job panicked", "err", rec, "stack", string(debug.Stack()))
		}
	}()
	job()
}
