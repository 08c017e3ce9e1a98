package plagiarism

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type Job interface {
	Execute(ctx context.Context) error
}

// WorkerPool runs submitted jobs on a fixed set of goroutines. Jobs receive
// the pool context, which ends when the parent context does.
type WorkerPool struct {
	size   int
	jobs   chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts size workers. A size <= 0 uses the CPU count minus a
// quarter kept for the rest of the process.
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	if size <= 0 {
		cpus := runtime.NumCPU()
		size = max(1, cpus-max(1, cpus/4))
	}
	poolCtx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		size:   size,
		jobs:   make(chan Job, size*2),
		ctx:    poolCtx,
		cancel: cancel,
	}
	p.wg.Add(size)
	for range size {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job.Execute(p.ctx); err != nil {
				log.Error().Err(err).Msg("Worker failed to execute job")
			}
		}
	}
}

// Submit queues job, blocking while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Close stops accepting jobs, waits for queued jobs to finish and releases the
// pool. It is safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *WorkerPool) Size() int {
	return p.size
}
