/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/storescrape/scrapekit/throttle"
)

func ExampleWrap() {
	const interval = 100 * time.Millisecond

	fetchAppTitle, err := throttle.Wrap(func(_ context.Context, appID string) (string, error) {
		return strings.ToUpper(appID), nil
	}, throttle.Config{Limit: 1, Interval: interval})
	if err != nil {
		fmt.Println(err)
		return
	}

	started := time.Now()
	var wg sync.WaitGroup
	titles := make([]string, 3)
	for i, appID := range []string{"maps", "mail", "music"} {
		wg.Add(1)
		go func(i int, appID string) {
			defer wg.Done()
			titles[i], _ = fetchAppTitle(context.Background(), appID)
		}(i, appID)
	}
	wg.Wait()

	fmt.Println(titles)
	fmt.Println(time.Since(started) >= 2*interval)

	// Output:
	// [MAPS MAIL MUSIC]
	// true
}

func ExampleWrapAsync() {
	lookup, err := throttle.WrapAsync(func(_ context.Context, n int) (int, error) {
		if n < 0 {
			return 0, fmt.Errorf("negative id %d", n)
		}
		return n * 10, nil
	}, throttle.Config{Limit: 2, Interval: 50 * time.Millisecond})
	if err != nil {
		fmt.Println(err)
		return
	}

	var futures []*throttle.Future[int]
	for _, n := range []int{1, -2, 3} {
		f, submitErr := lookup(context.Background(), n)
		if submitErr != nil {
			fmt.Println(submitErr)
			return
		}
		futures = append(futures, f)
	}
	for _, f := range futures {
		fmt.Println(f.Result())
	}

	// Output:
	// 10 <nil>
	// 0 negative id -2
	// 30 <nil>
}

func ExampleNew_invalidConfig() {
	_, err := throttle.New(func(context.Context, string) (string, error) {
		return "", nil
	}, throttle.Config{Limit: 0, Interval: time.Second})
	fmt.Println(err)

	// Output:
	// limit must be positive, got 0: invalid throttle configuration
}
