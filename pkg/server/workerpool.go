package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Future reports completion of a submitted task
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has run
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task has run. It returns an error if the task panicked.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

type task struct {
	fn     func()
	future *Future
}

// WorkerPool runs tasks on a fixed set of goroutines draining one shared FIFO.
// The queue is unbounded: Submit never blocks and never rejects work while
// the pool is open.
type WorkerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool
	wg      sync.WaitGroup
	size    int
}

// NewWorkerPool starts size workers. size <= 0 means one worker.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}

	p := &WorkerPool{
		tasks: queue.New(),
		size:  size,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return p.size
}

// Submit enqueues fn and wakes one idle worker
func (p *WorkerPool) Submit(fn func()) (*Future, error) {
	f := &Future{done: make(chan struct{})}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.tasks.Add(task{fn: fn, future: f})
	p.mu.Unlock()

	p.cond.Signal()
	return f, nil
}

// Pending returns the number of queued tasks not yet picked up by a worker
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Close stops accepting tasks, lets workers drain what is queued, and waits
// for all of them to exit
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			p.mu.Unlock()
			return
		}
		t := p.tasks.Remove().(task)
		p.mu.Unlock()

		p.run(t)
	}
}

// run executes one task. A panic is contained to the task and reported
// through its Future.
func (p *WorkerPool) run(t task) {
	defer close(t.future.done)
	defer func() {
		if r := recover(); r != nil {
			t.future.err = fmt.Errorf("task panicked: %v", r)
			errorLog.Printf("Worker: %v", t.future.err)
		}
	}()

	t.fn()
}
