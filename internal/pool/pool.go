// Package pool implements a fixed-size worker pool that supervises its
// workers: a task that panics is recovered and logged inside the worker
// goroutine that ran it, and that worker goes on taking tasks, so the
// pool never shrinks. There is no master goroutine; workers pull tasks
// straight from a shared channel.
package pool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kvstash/kvstash/internal/logging"
)

// Task is a unit of work submitted to the pool.
type Task func()

// Pool runs submitted tasks on a fixed number of long-lived goroutines.
// A panicking task is recovered; the worker that ran it keeps working.
// The zero value is not usable; use New.
type Pool struct {
	tasks chan Task

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// New starts a Pool with size worker goroutines pulling from a shared,
// unbuffered task channel. A size below 1 is treated as 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		tasks:  make(chan Task),
		closed: make(chan struct{}),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

// worker pulls tasks off the shared channel until the pool is shut down.
// A task's panic is recovered here and logged; the worker loop continues
// immediately afterward, so one bad task never shrinks the pool.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runSupervised(id, task)
		}
	}
}

func (p *Pool) runSupervised(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("pool worker recovered from panic",
				zap.Int("worker", id),
				zap.Any("panic", r),
			)
		}
	}()
	task()
}

// ErrClosed is returned by Submit once the pool has been shut down.
var ErrClosed = fmt.Errorf("pool: closed")

// Submit hands task to the pool. It blocks until a worker is available to
// receive it, unless the pool has already been shut down, in which case
// it returns ErrClosed without running task.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

// Shutdown stops accepting new tasks and blocks until every in-flight
// task's worker has returned. A Submit still blocked in its channel send
// returns ErrClosed and its task never runs; there is no separate waiting
// queue to drain. The task channel itself is never closed: closing the
// closed channel is what lets any worker blocked in a receive exit cleanly.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
