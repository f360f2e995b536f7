package worker

import (
	"context"
	"sync"
)

type Task interface {
	Execute(ctx context.Context)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Execute(ctx context.Context) { f(ctx) }

// Pool runs tasks on a fixed number of workers. A pool is single use:
// after Close no more tasks are accepted and Wait returns once every
// queued task has finished.
type Pool struct {
	mu      sync.Mutex
	size    int
	closed  bool
	tasks   chan Task
	kill    chan struct{}
	workers sync.WaitGroup
	pending sync.WaitGroup
	ctx     context.Context
}

func NewPool(ctx context.Context, speed int, queue int) *Pool {
	if speed < 1 {
		speed = 1
	}
	if queue < 0 {
		queue = 0
	}
	pool := &Pool{
		tasks: make(chan Task, queue),
		kill:  make(chan struct{}),
		ctx:   ctx,
	}
	pool.Resize(speed)
	return pool
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
		case <-p.kill:
			return
		}
	}
}

func (p *Pool) run(task Task) {
	defer p.pending.Done()
	task.Execute(p.ctx)
}

// Resize grows or shrinks the number of workers. Shrinking never drops
// queued tasks, but it must leave at least one worker. A closed pool
// is left as is.
func (p *Pool) Resize(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for p.size < n {
		p.size++
		p.workers.Add(1)
		go p.worker()
	}
	for p.size > n {
		p.size--
		p.kill <- struct{}{}
	}
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// Wait blocks until all submitted tasks are done. Call Close first.
func (p *Pool) Wait() {
	p.pending.Wait()
	p.workers.Wait()
}

func (p *Pool) Exec(task Task) {
	p.pending.Add(1)
	p.tasks <- task
}
