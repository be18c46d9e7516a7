/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package httpclient_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/storescrape/scrapekit/httpclient"
	"github.com/storescrape/scrapekit/throttle"
)

func ExampleNewThrottlingRoundTripper() {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// No more than 2 requests are started within any 100ms window, the rest wait in the queue.
	rt, err := httpclient.NewThrottlingRoundTripper(http.DefaultTransport, throttle.Config{Limit: 2, Interval: 100 * time.Millisecond})
	if err != nil {
		fmt.Println(err)
		return
	}
	client := &http.Client{Transport: rt}

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			fmt.Println(err)
			return
		}
		_ = resp.Body.Close()
	}
	fmt.Println("third request waited for the next window:", time.Since(start) >= 100*time.Millisecond)
	// Output: third request waited for the next window: true
}

func ExampleNew() {
	cfg := httpclient.NewConfig()
	cfg.Timeout = 30 * time.Second
	cfg.Throttle = httpclient.ThrottleConfig{
		Enabled:  true,
		Throttle: throttle.Config{Limit: 10, Interval: time.Second},
		PerHost:  true,
		Hosts:    map[string]throttle.Rate{"play.example.com": {Count: 1, Duration: 500 * time.Millisecond}},
	}

	client, err := httpclient.New(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(client.Timeout)
	// Output: 30s
}
