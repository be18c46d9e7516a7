/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
	"golang.org/x/time/rate"
)

// Admitter decides whether a job may start now. Implementations are not safe for
// concurrent use: the scheduler calls them only while holding its lock.
type Admitter interface {
	// TryAdmit returns true and records the admission if capacity is available at now.
	TryAdmit(now time.Time) bool

	// NextAvailableTime returns the earliest moment at which TryAdmit may succeed.
	NextAvailableTime(now time.Time) time.Time
}

// NewAdmitter creates an Admitter for the algorithm named in cfg.
func NewAdmitter(cfg Config) (Admitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.algorithm() {
	case AlgorithmSlidingWindow:
		return newSlidingWindowAdmitter(cfg.Limit, cfg.Interval), nil
	case AlgorithmLeakyBucket:
		return newLeakyBucketAdmitter(cfg.Limit, cfg.Interval)
	case AlgorithmTokenBucket:
		return newTokenBucketAdmitter(cfg.Limit, cfg.Interval), nil
	default:
		return newFixedWindow(cfg.Limit, cfg.Interval), nil
	}
}

// slidingWindowAdmitter weights the previous window's count by its overlap with the sliding one.
type slidingWindowAdmitter struct {
	limiter *slidingwindow.Limiter
	window  *slidingWindowCounter
	limit   int64
}

func newSlidingWindowAdmitter(limit int, interval time.Duration) *slidingWindowAdmitter {
	window := &slidingWindowCounter{size: interval}
	lim, _ := slidingwindow.NewLimiter(interval, int64(limit), func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return window, func() {}
	})
	return &slidingWindowAdmitter{limiter: lim, window: window, limit: int64(limit)}
}

func (a *slidingWindowAdmitter) TryAdmit(now time.Time) bool {
	return a.limiter.AllowN(now, 1)
}

// NextAvailableTime solves floor(prev*(size-elapsed)/size) + curr < limit for elapsed,
// the same weighted count the limiter checks.
func (a *slidingWindowAdmitter) NextAvailableTime(now time.Time) time.Time {
	start, curr, prev := a.window.at(now)
	size := a.window.size
	if curr >= a.limit {
		return start.Add(size)
	}
	if prev == 0 {
		return now
	}
	free := a.limit - curr
	if free > prev {
		return now
	}
	// The weighted count drops below free once elapsed > size*(prev-free)/prev.
	var elapsed time.Duration
	if int64(size) <= math.MaxInt64/prev {
		elapsed = time.Duration(int64(size)*(prev-free)/prev) + 1
	} else {
		elapsed = time.Duration(float64(size)*float64(prev-free)/float64(prev)) + 1
	}
	if elapsed > size {
		elapsed = size
	}
	if at := start.Add(elapsed); at.After(now) {
		return at
	}
	return now
}

// slidingWindowCounter is the current window of the limiter.
// It also remembers the count of the window it replaced, which the limiter does not expose.
type slidingWindowCounter struct {
	size      time.Duration
	start     time.Time
	count     int64
	prevCount int64
}

var _ slidingwindow.Window = (*slidingWindowCounter)(nil)

func (w *slidingWindowCounter) Start() time.Time { return w.start }

func (w *slidingWindowCounter) Count() int64 { return w.count }

func (w *slidingWindowCounter) AddCount(n int64) { w.count += n }

func (w *slidingWindowCounter) Reset(s time.Time, c int64) {
	w.prevCount = w.rolledCount(s)
	w.start = s
	w.count = c
}

func (w *slidingWindowCounter) Sync(time.Time) {}

// rolledCount returns the previous-window count the limiter uses once the current window starts at s.
func (w *slidingWindowCounter) rolledCount(s time.Time) int64 {
	if s.Sub(w.start) == w.size {
		return w.count
	}
	return 0
}

// at returns the window state as the limiter sees it at now.
func (w *slidingWindowCounter) at(now time.Time) (start time.Time, curr, prev int64) {
	s := now.Truncate(w.size)
	if !s.After(w.start) {
		return w.start, w.count, w.prevCount
	}
	return s, 0, w.rolledCount(s)
}

// leakyBucketAdmitter implements GCRA (Generic Cell Rate Algorithm) with burst equal to the limit.
type leakyBucketAdmitter struct {
	limiter    *throttled.GCRARateLimiterCtx
	retryAfter time.Duration
}

const leakyBucketKey = "throttle"

func newLeakyBucketAdmitter(limit int, interval time.Duration) (*leakyBucketAdmitter, error) {
	gcraStore, err := memstore.NewCtx(1)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	quota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(limit, interval),
		MaxBurst: limit - 1,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, quota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &leakyBucketAdmitter{limiter: gcraLimiter}, nil
}

// TryAdmit ignores now: the GCRA store reads the wall clock itself.
func (a *leakyBucketAdmitter) TryAdmit(_ time.Time) bool {
	limited, res, err := a.limiter.RateLimitCtx(context.Background(), leakyBucketKey, 1)
	if err != nil {
		// The in-memory store does not fail; treat a failure as a refusal retried shortly.
		a.retryAfter = time.Millisecond
		return false
	}
	if limited {
		a.retryAfter = res.RetryAfter
		return false
	}
	return true
}

func (a *leakyBucketAdmitter) NextAvailableTime(now time.Time) time.Time {
	if a.retryAfter <= 0 {
		return now
	}
	return now.Add(a.retryAfter)
}

// tokenBucketAdmitter refills one token every interval/limit, holding up to limit tokens.
type tokenBucketAdmitter struct {
	limiter *rate.Limiter
}

func newTokenBucketAdmitter(limit int, interval time.Duration) *tokenBucketAdmitter {
	period := interval / time.Duration(limit)
	if period <= 0 {
		// rate.Every(0) is rate.Inf, which would never refuse.
		period = time.Nanosecond
	}
	return &tokenBucketAdmitter{limiter: rate.NewLimiter(rate.Every(period), limit)}
}

func (a *tokenBucketAdmitter) TryAdmit(now time.Time) bool {
	return a.limiter.AllowN(now, 1)
}

func (a *tokenBucketAdmitter) NextAvailableTime(now time.Time) time.Time {
	r := a.limiter.ReserveN(now, 1)
	if !r.OK() {
		return now.Add(time.Second)
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return now.Add(delay)
}
