/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import "time"

// fixedWindow counts admissions in consecutive, non-overlapping windows of the given length.
//
// The window is reset lazily: when an admission is attempted at or after start+interval,
// a new window starts at that moment with a zero counter. No timer is needed while idle.
// Anchoring the new window at the admission time (not at the previous boundary) keeps
// admissions with limit=1 at least one interval apart.
type fixedWindow struct {
	limit    int
	interval time.Duration

	start      time.Time
	admissions int
}

func newFixedWindow(limit int, interval time.Duration) *fixedWindow {
	return &fixedWindow{limit: limit, interval: interval}
}

func (w *fixedWindow) rollover(now time.Time) {
	if w.start.IsZero() || !now.Before(w.start.Add(w.interval)) {
		w.start = now
		w.admissions = 0
	}
}

// TryAdmit counts one admission and returns true if the current window has spare capacity.
// When the window is full it returns false and changes nothing but a possible rollover.
func (w *fixedWindow) TryAdmit(now time.Time) bool {
	w.rollover(now)
	if w.admissions >= w.limit {
		return false
	}
	w.admissions++
	return true
}

// NextAvailableTime returns now if an admission is possible, otherwise the moment the current window ends.
func (w *fixedWindow) NextAvailableTime(now time.Time) time.Time {
	if w.start.IsZero() || !now.Before(w.start.Add(w.interval)) || w.admissions < w.limit {
		return now
	}
	return w.start.Add(w.interval)
}

// State returns the current window start and admission count.
func (w *fixedWindow) State() (start time.Time, admissions int) {
	return w.start, w.admissions
}
