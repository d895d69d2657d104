package playback

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// coalescer runs fn at most once at a time. Requests arriving while a run is
// in flight collapse into a single follow-up run, and fn always reads the
// latest state, so the last write wins.
type coalescer struct {
	sem   *semaphore.Weighted
	mu    sync.Mutex
	dirty bool
	fn    func(context.Context) error
}

func newCoalescer(fn func(context.Context) error) *coalescer {
	return &coalescer{sem: semaphore.NewWeighted(1), fn: fn}
}

// Request marks the state dirty and, unless another caller is already
// running fn, runs it until no request is outstanding. It returns the error
// of the last run performed by this caller.
func (q *coalescer) Request(ctx context.Context) error {
	q.mu.Lock()
	q.dirty = true
	q.mu.Unlock()

	var err error
	for {
		if !q.sem.TryAcquire(1) {
			return err
		}
		for q.take() {
			err = q.fn(ctx)
		}
		q.sem.Release(1)

		// A request may have landed between the last take and Release.
		q.mu.Lock()
		more := q.dirty
		q.mu.Unlock()
		if !more {
			return err
		}
	}
}

func (q *coalescer) take() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	d := q.dirty
	q.dirty = false
	return d
}
