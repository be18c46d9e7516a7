/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"context"
	"runtime"

	"github.com/storescrape/scrapekit/log"
)

// PanicStackSize defines the size of the stack part captured into PanicError.
const PanicStackSize = 8192

// Operation is a call that can be throttled.
type Operation[A, R any] func(ctx context.Context, args A) (R, error)

// Throttle wraps an Operation so that calls start no faster than its Config allows.
// Calls above the limit are queued and started in the order they were made.
// A Throttle is safe for concurrent use.
type Throttle[A, R any] struct {
	op    Operation[A, R]
	cfg   Config
	sched *scheduler
}

// New creates a Throttle for op. It fails with an error wrapping ErrInvalidConfig
// if op is nil or cfg is not valid.
func New[A, R any](op Operation[A, R], cfg Config, opts ...Option) (*Throttle[A, R], error) {
	if op == nil {
		return nil, configErrorf("operation must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := makeOptions(opts)

	admitter := o.admitter
	if admitter == nil {
		var err error
		if admitter, err = NewAdmitter(cfg); err != nil {
			return nil, err
		}
	}

	logger := o.logger
	if o.name != "" {
		logger = logger.With(log.String("throttle", o.name))
	}
	cfg.Algorithm = cfg.algorithm()

	return &Throttle[A, R]{
		op:    op,
		cfg:   cfg,
		sched: newScheduler(admitter, cfg.MaxQueueDepth, logger, o.metrics),
	}, nil
}

// Wrap returns a function with the same signature as op that is throttled according to cfg.
// Each call blocks until the operation finishes or ctx is done.
func Wrap[A, R any](op Operation[A, R], cfg Config, opts ...Option) (Operation[A, R], error) {
	t, err := New(op, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return t.Do, nil
}

// WrapAsync is like Wrap, but the returned function does not wait: it returns a Future
// as soon as the call is queued.
func WrapAsync[A, R any](op Operation[A, R], cfg Config, opts ...Option) (func(context.Context, A) (*Future[R], error), error) {
	t, err := New(op, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return t.Submit, nil
}

// Submit queues a call and returns its Future. The operation will receive ctx and args as they are.
// An error is returned only when the queue has a maximum depth and it is reached.
func (t *Throttle[A, R]) Submit(ctx context.Context, args A) (*Future[R], error) {
	j := newJob()
	f := newFuture[R](j)
	j.run = func() {
		t.execute(ctx, args, f)
	}
	if err := t.sched.enqueue(j); err != nil {
		return nil, err
	}
	return f, nil
}

// Do queues a call and waits for its result.
// If ctx is done before the call is settled, ctx.Err() is returned; the call itself still runs.
func (t *Throttle[A, R]) Do(ctx context.Context, args A) (R, error) {
	f, err := t.Submit(ctx, args)
	if err != nil {
		var zero R
		return zero, err
	}
	return f.Wait(ctx)
}

// Config returns the effective configuration.
func (t *Throttle[A, R]) Config() Config {
	return t.cfg
}

// Stats returns a snapshot of the throttle state.
func (t *Throttle[A, R]) Stats() Stats {
	return t.sched.stats()
}

func (t *Throttle[A, R]) execute(ctx context.Context, args A, f *Future[R]) {
	res, err := t.call(ctx, args)
	f.settle(res, err)
	t.sched.onSettled(err != nil)
}

func (t *Throttle[A, R]) call(ctx context.Context, args A) (res R, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := make([]byte, PanicStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			var zero R
			res, err = zero, &PanicError{Value: p, Stack: stack}
		}
	}()
	return t.op(ctx, args)
}
