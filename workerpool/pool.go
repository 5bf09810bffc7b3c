package workerpool

import (
	"context"
	"sync"
)

// Job is a unit of work submitted to a Pool.
type Job func() error

// Pool runs jobs on a fixed number of worker goroutines.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	jobs chan Job
	wg   sync.WaitGroup

	m   sync.Mutex
	err error
}

// New creates a pool with the specified number of workers.
func New(workers int) *Pool {
	return NewWithCtx(context.Background(), workers)
}

// NewWithCtx creates a pool with the specified number of workers, all jobs
// are abandoned once the provided context is cancelled.
func NewWithCtx(ctx context.Context, workers int) *Pool {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan Job),
	}
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Add submits jobs to the pool, it never blocks on the workers.
func (p *Pool) Add(jobs []Job) {
	p.wg.Add(len(jobs))
	go func() {
		for _, job := range jobs {
			select {
			case p.jobs <- job:
			case <-p.ctx.Done():
				p.wg.Done()
			}
		}
	}()
}

// Wait blocks until all submitted jobs have completed or the pool was
// stopped, and returns the first error encountered by any job.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.m.Lock()
	defer p.m.Unlock()
	return p.err
}

// Stop abandons any jobs that have not started yet. Jobs already running
// are allowed to finish.
func (p *Pool) Stop() {
	p.cancel()
}

func (p *Pool) work() {
	for {
		select {
		case job := <-p.jobs:
			if err := job(); err != nil {
				p.m.Lock()
				if p.err == nil {
					p.err = err
				}
				p.m.Unlock()
			}
			p.wg.Done()
		case <-p.ctx.Done():
			return
		}
	}
}
