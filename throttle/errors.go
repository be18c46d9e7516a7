/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned (wrapped) by constructors when the throttle configuration is not usable.
var ErrInvalidConfig = errors.New("invalid throttle configuration")

// ErrQueueFull is returned (wrapped into *QueueFullError) when MaxQueueDepth is set and the backlog is full.
var ErrQueueFull = errors.New("throttle queue is full")

// QueueFullError is returned by Submit when the job cannot be queued.
type QueueFullError struct {
	MaxDepth int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("%s (max depth %d)", ErrQueueFull.Error(), e.MaxDepth)
}

// Unwrap returns ErrQueueFull, so errors.Is(err, ErrQueueFull) works.
func (e *QueueFullError) Unwrap() error {
	return ErrQueueFull
}

// PanicError is the failure of a job whose operation panicked.
// The panic is recovered and does not affect other jobs.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("throttled operation panicked: %v", e.Value)
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
}
