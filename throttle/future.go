/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"context"
	"time"
)

// Future is the pending result of a throttled call.
// It is settled exactly once, with the value and error returned by the wrapped operation.
type Future[R any] struct {
	job   *job
	done  chan struct{}
	value R
	err   error
}

func newFuture[R any](j *job) *Future[R] {
	return &Future[R]{job: j, done: make(chan struct{})}
}

func (f *Future[R]) settle(value R, err error) {
	f.value, f.err = value, err
	f.job.setState(JobSettled)
	close(f.done)
}

// Done returns a channel that is closed when the call is settled.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the call is settled and returns its outcome.
func (f *Future[R]) Result() (R, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the call is settled or ctx is done.
// If ctx ends first, ctx.Err() is returned, but the job itself is not cancelled:
// it will still be admitted and executed.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// State returns the current state of the call.
func (f *Future[R]) State() JobState {
	return f.job.getState()
}

// ID returns the unique identifier of the call.
func (f *Future[R]) ID() string {
	return f.job.id.String()
}

// Seq returns the enqueue sequence number of the call, starting at 1 for each throttle.
func (f *Future[R]) Seq() uint64 {
	return f.job.seq
}

// EnqueuedAt returns the time when the call was queued.
func (f *Future[R]) EnqueuedAt() time.Time {
	return f.job.enqueuedAt
}

// AdmittedAt returns the time when the call was admitted for execution.
// The second value is false while the call is still pending.
func (f *Future[R]) AdmittedAt() (time.Time, bool) {
	if f.job.getState() == JobPending {
		return time.Time{}, false
	}
	return f.job.admittedAt, true
}
