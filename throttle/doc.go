/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package throttle limits how fast an arbitrary operation may be started.
//
// A Throttle wraps an Operation and guarantees that no more than Config.Limit calls
// begin within any window of length Config.Interval. Calls above the limit are not rejected:
// they wait in an unbounded FIFO queue (bounded if Config.MaxQueueDepth is set) and are started
// in the order they were made as soon as the window permits. Each call gets exactly the value
// and error returned by its own invocation of the operation; the throttle never retries,
// caches or deduplicates calls.
//
// Example:
//
//	fetch, err := throttle.Wrap(func(ctx context.Context, url string) (*http.Response, error) {
//		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//		if err != nil {
//			return nil, err
//		}
//		return http.DefaultClient.Do(req)
//	}, throttle.Config{Limit: 1, Interval: 500 * time.Millisecond})
//
// Admission uses a fixed window by default. A new window starts with the first admission
// after the previous one has expired, so with Limit=1 two calls never start closer than Interval.
// The sliding_window, leaky_bucket and token_bucket algorithms can be selected via Config.Algorithm;
// they smooth bursts but do not give the strict per-window guarantee.
//
// Keyed keeps an independent Throttle per key (for example, per remote host).
package throttle
