/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/storescrape/scrapekit/log"
)

// minRearmDelay is used when an admitter refuses an admission but reports it as available already.
const minRearmDelay = time.Millisecond

// Stats is a point-in-time snapshot of a throttle.
type Stats struct {
	QueueDepth int
	Enqueued   uint64
	Rejected   uint64
	Admitted   uint64
	Settled    uint64

	// WindowStart and WindowAdmissions describe the current fixed window.
	// They are zero for other algorithms.
	WindowStart      time.Time
	WindowAdmissions int

	// WakeUpArmed reports whether a timer is waiting to admit queued jobs at WakeUpAt.
	WakeUpArmed bool
	WakeUpAt    time.Time

	// WakeUpsArmed is the number of timers armed since construction.
	WakeUpsArmed uint64
}

// scheduler admits queued jobs as the admitter permits.
//
// All queue and admitter state is mutated under mu. Admitted jobs are started
// in their own goroutines after mu is released, so a slow operation never delays admission.
type scheduler struct {
	mu       sync.Mutex
	admitter Admitter
	queue    jobQueue
	maxDepth int
	nextSeq  uint64

	timer       *time.Timer
	timerArmed  bool
	wakeAt      time.Time
	timerArms   uint64
	enqueued    uint64
	rejected    uint64
	admitted    uint64
	settled     atomic.Uint64
	logger      log.FieldLogger
	metrics     MetricsCollector
	dispatchJob func(j *job)
}

func newScheduler(admitter Admitter, maxDepth int, logger log.FieldLogger, metrics MetricsCollector) *scheduler {
	return &scheduler{
		admitter:    admitter,
		maxDepth:    maxDepth,
		logger:      logger,
		metrics:     metrics,
		dispatchJob: func(j *job) { go j.run() },
	}
}

// enqueue appends the job to the queue and admits whatever the window allows right away.
func (s *scheduler) enqueue(j *job) error {
	s.mu.Lock()
	if s.maxDepth > 0 && s.queue.len() >= s.maxDepth {
		s.rejected++
		s.mu.Unlock()
		s.metrics.IncRejected()
		return &QueueFullError{MaxDepth: s.maxDepth}
	}

	now := time.Now()
	s.nextSeq++
	j.seq = s.nextSeq
	j.enqueuedAt = now
	s.queue.push(j)
	s.enqueued++
	s.metrics.IncEnqueued()
	s.metrics.IncQueueDepth()

	ready := s.admitLocked(now)
	s.mu.Unlock()

	s.dispatch(ready)
	return nil
}

// wake is the timer callback.
func (s *scheduler) wake() {
	s.mu.Lock()
	now := time.Now()
	if s.timerArmed && now.Before(s.wakeAt) {
		// A callback of a timer that has been reset to a later deadline. The reset timer will fire on time.
		s.mu.Unlock()
		return
	}
	s.timerArmed = false

	ready := s.admitLocked(now)
	s.mu.Unlock()

	s.dispatch(ready)
}

// admitLocked pops jobs in FIFO order while the admitter allows it.
// If jobs remain, a single wake-up is armed for the moment capacity returns.
func (s *scheduler) admitLocked(now time.Time) []*job {
	var ready []*job
	for s.queue.len() > 0 {
		if !s.admitter.TryAdmit(now) {
			s.armLocked(s.admitter.NextAvailableTime(now), now)
			break
		}
		j, _ := s.queue.pop()
		j.admittedAt = now
		j.setState(JobAdmitted)
		s.admitted++
		s.metrics.DecQueueDepth()
		s.metrics.ObserveAdmission(now.Sub(j.enqueuedAt))
		ready = append(ready, j)
	}
	return ready
}

// armLocked makes sure the scheduler is woken up not later than at.
// An already armed timer with the same or an earlier deadline is kept.
func (s *scheduler) armLocked(at, now time.Time) {
	if s.timerArmed && !at.Before(s.wakeAt) {
		return
	}

	delay := at.Sub(now)
	if delay <= 0 {
		delay = minRearmDelay
		at = now.Add(delay)
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(delay, s.wake)
	} else {
		s.timer.Stop()
		s.timer.Reset(delay)
	}
	s.timerArmed = true
	s.wakeAt = at
	s.timerArms++

	s.logger.Debug("throttle capacity exhausted, jobs deferred",
		log.Int("queue_depth", s.queue.len()),
		log.Duration("wake_up_in", delay),
	)
}

func (s *scheduler) dispatch(ready []*job) {
	for _, j := range ready {
		s.dispatchJob(j)
	}
}

func (s *scheduler) onSettled(failed bool) {
	s.metrics.IncSettled(failed)
	s.settled.Inc()
}

func (s *scheduler) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		QueueDepth:   s.queue.len(),
		Enqueued:     s.enqueued,
		Rejected:     s.rejected,
		Admitted:     s.admitted,
		Settled:      s.settled.Load(),
		WakeUpArmed:  s.timerArmed,
		WakeUpsArmed: s.timerArms,
	}
	if s.timerArmed {
		st.WakeUpAt = s.wakeAt
	}
	if fw, ok := s.admitter.(*fixedWindow); ok {
		st.WindowStart, st.WindowAdmissions = fw.State()
	}
	return st
}
