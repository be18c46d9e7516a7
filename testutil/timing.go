/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"sort"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertMinSpacing asserts that any two of the passed moments, once sorted, are at least minGap apart.
func AssertMinSpacing(t assert.TestingT, moments []time.Time, minGap time.Duration, msgAndArgs ...interface{}) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	sorted := sortedCopy(moments)
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i].Sub(sorted[i-1]); gap < minGap {
			return assert.Fail(t, fmt.Sprintf("moments #%d and #%d are %s apart, should be at least %s",
				i-1, i, gap, minGap), msgAndArgs...)
		}
	}
	return true
}

// RequireMinSpacing calls AssertMinSpacing and fail test immediately in case of error.
func RequireMinSpacing(t require.TestingT, moments []time.Time, minGap time.Duration, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertMinSpacing(t, moments, minGap, msgAndArgs...) {
		return
	}
	t.FailNow()
}

// AssertFixedWindowBound asserts that the passed moments fit into consecutive windows of the given length
// with at most n moments each. The first window starts at the earliest moment, every next window starts
// at the first moment that is not covered by the previous one.
func AssertFixedWindowBound(
	t assert.TestingT, moments []time.Time, n int, interval time.Duration, msgAndArgs ...interface{},
) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	sorted := sortedCopy(moments)
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].Sub(sorted[start]) < interval {
			end++
		}
		if end-start > n {
			return assert.Fail(t, fmt.Sprintf("window starting at moment #%d contains %d moments, should be at most %d per %s",
				start, end-start, n, interval), msgAndArgs...)
		}
		start = end
	}
	return true
}

// RequireFixedWindowBound calls AssertFixedWindowBound and fail test immediately in case of error.
func RequireFixedWindowBound(
	t require.TestingT, moments []time.Time, n int, interval time.Duration, msgAndArgs ...interface{},
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertFixedWindowBound(t, moments, n, interval, msgAndArgs...) {
		return
	}
	t.FailNow()
}

func sortedCopy(moments []time.Time) []time.Time {
	sorted := make([]time.Time, len(moments))
	copy(sorted, moments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted
}
