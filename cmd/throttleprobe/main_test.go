/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storescrape/scrapekit/httpclient"
	"github.com/storescrape/scrapekit/log/logtest"
	"github.com/storescrape/scrapekit/testutil"
	"github.com/storescrape/scrapekit/throttle"
)

func TestParseFlags(t *testing.T) {
	var usage bytes.Buffer
	f, err := parseFlags([]string{"--rate", "2/500ms", "--per-host", "--diag-addr", "127.0.0.1:9191",
		"https://play.example.com/", "https://apps.example.com/"}, &usage)
	require.NoError(t, err)
	require.Equal(t, "2/500ms", f.rate)
	require.True(t, f.perHost)
	require.Equal(t, "127.0.0.1:9191", f.diagAddr)
	require.Equal(t, []string{"https://play.example.com/", "https://apps.example.com/"}, f.urls)

	require.Zero(t, usage.Len())

	_, err = parseFlags([]string{"--rate", "fast", "https://play.example.com/"}, &usage)
	require.ErrorContains(t, err, "invalid --rate")

	_, err = parseFlags([]string{"--rate", "1/s"}, &usage)
	require.EqualError(t, err, "at least one URL is required")
	require.True(t, strings.HasPrefix(usage.String(), "Usage: throttleprobe [flags] URL...\n"), usage.String())
	require.Contains(t, usage.String(), "--per-host")

	f, err = parseFlags([]string{"--config", "probe.yml", "https://play.example.com/"}, &usage)
	require.NoError(t, err)
	require.Empty(t, f.rate, "the rate from the configuration file must be used")
}

func TestLoadAppConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "probe.yml")
	cfgData := `
log:
  level: warn
httpClient:
  timeout: 5s
  throttle:
    enabled: true
    rate: 3/s
    algorithm: sliding_window
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgData), 0o600))

	cfg, err := loadAppConfig(flags{configPath: cfgPath})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.HTTPClient.Timeout)
	require.Equal(t, throttle.Config{Limit: 3, Interval: time.Second, Algorithm: throttle.AlgorithmSlidingWindow},
		cfg.HTTPClient.Throttle.Throttle)
	require.True(t, cfg.HTTPClient.Metrics.Enabled)
	require.False(t, cfg.Diag.Enabled)

	cfg, err = loadAppConfig(flags{configPath: cfgPath, rate: "1/250ms", perHost: true, diagAddr: "127.0.0.1:9191"})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.HTTPClient.Throttle.Throttle.Limit)
	require.Equal(t, 250*time.Millisecond, cfg.HTTPClient.Throttle.Throttle.Interval)
	require.Equal(t, throttle.AlgorithmSlidingWindow, cfg.HTTPClient.Throttle.Throttle.Algorithm)
	require.True(t, cfg.HTTPClient.Throttle.PerHost)
	require.True(t, cfg.Diag.Enabled)
	require.Equal(t, "127.0.0.1:9191", cfg.Diag.Address)

	_, err = loadAppConfig(flags{rate: "0/s"})
	require.ErrorIs(t, err, throttle.ErrInvalidConfig)
}

func TestProbe(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		if r.URL.Path == "/missing" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	const interval = 100 * time.Millisecond
	rt, err := httpclient.NewThrottlingRoundTripper(http.DefaultTransport, throttle.Config{Limit: 1, Interval: interval})
	require.NoError(t, err)
	client := &http.Client{Transport: rt}

	logger := logtest.NewRecorder()
	var out bytes.Buffer
	urls := []string{server.URL + "/a", server.URL + "/b", server.URL + "/missing", "http://[::1]:namedport"}
	probe(context.Background(), client, urls, logger, &out)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(urls))
	require.Contains(t, lines[0], "status=200")
	require.Contains(t, lines[0], "done_at=+")
	require.Contains(t, lines[1], "status=200")
	require.Contains(t, lines[2], "status=404")
	require.Contains(t, lines[3], "error:")
	_, found := logger.FindEntry("probe request failed")
	require.True(t, found)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, arrivals, 3)
	testutil.RequireMinSpacing(t, arrivals, interval-20*time.Millisecond)
}
