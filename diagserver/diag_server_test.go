/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package diagserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/storescrape/scrapekit/log/logtest"
	"github.com/storescrape/scrapekit/throttle"
)

func TestDiagServer_Routes(t *testing.T) {
	registry := prometheus.NewRegistry()
	throttleMetrics := throttle.NewPrometheusMetricsWithOpts(throttle.PrometheusMetricsOpts{Namespace: "scraper"})
	registry.MustRegister(throttleMetrics.EnqueuedTotal)
	throttleMetrics.IncEnqueued()

	logger := logtest.NewRecorder()
	diagServer := New(&Config{Address: "127.0.0.1:0"}, logger, registry)
	server := httptest.NewServer(diagServer.HTTPServer.Handler)
	defer server.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := get("/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "scraper_throttle_enqueued_total")

	status, body = get("/debug/pprof/")
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body)

	status, _ = get("/unknown")
	require.Equal(t, http.StatusNotFound, status)

	entry, found := logger.FindEntry("diagnostics http request served")
	require.True(t, found)
	pathField, found := entry.FindField("path")
	require.True(t, found)
	require.Equal(t, "/metrics", string(pathField.Bytes))
	_, found = entry.FindField("request_id")
	require.True(t, found)
}

func TestDiagServer_StartStop(t *testing.T) {
	logger := logtest.NewRecorder()
	diagServer := New(&Config{Address: "127.0.0.1:0"}, logger, nil)
	require.Equal(t, "http://127.0.0.1:0", diagServer.URL)

	fatalErr := make(chan error, 1)
	go diagServer.Start(fatalErr)
	require.Eventually(t, func() bool {
		_, found := logger.FindEntry("starting diagnostics HTTP server...")
		return found
	}, time.Second*3, time.Millisecond*10)

	require.NoError(t, diagServer.Stop())
	select {
	case err := <-fatalErr:
		require.NoError(t, err)
	default:
	}
}
