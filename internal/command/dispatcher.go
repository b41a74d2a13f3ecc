// Package command runs mutations as explicit asynchronous tasks. Each task
// waits out a simulated network latency and then resolves exactly once.
// Tasks sharing a key run one at a time in submission order.
package command

import (
	"context"
	"sync"
	"time"
)

// Dispatcher owns the per-key lanes.
type Dispatcher struct {
	latency time.Duration

	mu    sync.Mutex
	tails map[string]chan struct{}
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher that delays every task by latency.
func NewDispatcher(latency time.Duration) *Dispatcher {
	if latency < 0 {
		latency = 0
	}
	return &Dispatcher{latency: latency, tails: make(map[string]chan struct{})}
}

// Latency returns the simulated round-trip applied to each task.
func (d *Dispatcher) Latency() time.Duration { return d.latency }

// Task is a single in-flight mutation.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task resolves or ctx ends. Giving up does not cancel
// the task; it still runs to completion.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go schedules fn. An empty key means the task shares no lane.
func Go[T any](d *Dispatcher, key string, fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	var prev chan struct{}
	if key != "" {
		d.mu.Lock()
		prev = d.tails[key]
		d.tails[key] = t.done
		d.mu.Unlock()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if prev != nil {
			<-prev
		}
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		t.val, t.err = fn()

		if key != "" {
			d.mu.Lock()
			if d.tails[key] == t.done {
				delete(d.tails, key)
			}
			d.mu.Unlock()
		}
		close(t.done)
	}()
	return t
}

// Run is Go followed by Wait.
func Run[T any](ctx context.Context, d *Dispatcher, key string, fn func() (T, error)) (T, error) {
	return Go(d, key, fn).Wait(ctx)
}

// Drain waits for every scheduled task to resolve, or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of keys with queued or running tasks.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tails)
}
