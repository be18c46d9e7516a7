/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"
)

// JobState is a state of a single throttled call.
type JobState int32

// Job states. A job only moves forward: Pending -> Admitted -> Settled.
const (
	JobPending JobState = iota
	JobAdmitted
	JobSettled
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobAdmitted:
		return "admitted"
	case JobSettled:
		return "settled"
	}
	return "unknown"
}

// job is one logical invocation of the wrapped operation.
// seq, enqueuedAt and admittedAt are written under the scheduler lock; admittedAt is published
// to other goroutines by the state store that follows it.
type job struct {
	id         xid.ID
	seq        uint64
	enqueuedAt time.Time
	admittedAt time.Time
	state      atomic.Int32
	run        func()
}

func newJob() *job {
	return &job{id: xid.New()}
}

func (j *job) getState() JobState {
	return JobState(j.state.Load())
}

func (j *job) setState(s JobState) {
	j.state.Store(int32(s))
}
