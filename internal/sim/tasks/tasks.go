// Package tasks runs chunk generation and meshing work off the tick loop.
// The driver polls results without blocking.
package tasks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
)

var ErrStopped = errors.New("executor stopped")

// Executor is a worker pool. Workers == 0 leaves concurrency unbounded.
type Executor struct {
	pool pond.Pool

	mu      sync.RWMutex
	stopped bool
}

func NewExecutor(workers int) *Executor {
	if workers < 0 {
		workers = 0
	}
	return &Executor{pool: pond.NewPool(workers)}
}

// Running reports how many workers are busy.
func (e *Executor) Running() int64 { return e.pool.RunningWorkers() }

func (e *Executor) Submitted() uint64 { return e.pool.SubmittedTasks() }

// Stop waits for every submitted task to finish. Spawn after Stop returns
// tasks that are already failed with ErrStopped.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	e.pool.StopAndWait()
}

// Task is the handle of one unit of work.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Spawn submits fn. A panic inside fn is reported as the task's error.
func Spawn[T any](e *Executor, fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		t.err = ErrStopped
		close(t.done)
		return t
	}
	e.pool.Submit(func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("task panic: %v", r)
			}
		}()
		t.val, t.err = fn()
	})
	return t
}

// TryTake returns the result if the task has finished; ok is false otherwise.
func (t *Task[T]) TryTake() (val T, err error, ok bool) {
	select {
	case <-t.done:
		return t.val, t.err, true
	default:
		return val, nil, false
	}
}

// Wait blocks until the task finishes.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.val, t.err
}

func (t *Task[T]) Done() <-chan struct{} { return t.done }
