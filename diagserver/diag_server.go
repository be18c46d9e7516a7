/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Package diagserver provides an HTTP server that exposes Prometheus metrics and pprof profiles
// of a long-running scraper.
package diagserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storescrape/scrapekit/log"
)

// DiagServer represents an HTTP server for diagnostics.
// Metrics are served at /metrics, profiles at /debug/pprof/.
type DiagServer struct {
	URL            string
	HTTPServer     *http.Server
	httpServerDone chan struct{}
	Logger         log.FieldLogger
}

// New creates a new diagnostics HTTP server. Metrics are gathered from gatherer,
// prometheus.DefaultGatherer is used if it is nil.
func New(cfg *Config, logger log.FieldLogger, gatherer prometheus.Gatherer) *DiagServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID, chimiddleware.Recoverer, requestLogging(logger))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Mount("/debug", chimiddleware.Profiler())

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 5,
	}

	return &DiagServer{
		URL:            "http://" + httpServer.Addr,
		HTTPServer:     httpServer,
		httpServerDone: make(chan struct{}),
		Logger:         logger,
	}
}

// Start starts the diagnostics HTTP server in a blocking way. Supposed this method will be called in a separate goroutine.
// If a fatal error occurs, it's sent into passed fatalError channel and should be processed outside.
func (s *DiagServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))

	logger.Info("starting diagnostics HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("diagnostics HTTP server closed")
			return
		}
		logger.Error("diagnostics HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the diagnostics HTTP server (always in no gracefully way).
func (s *DiagServer) Stop() error {
	s.Logger.Info("closing diagnostics HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("diagnostics HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone // Wait closing of listener.
	return nil
}

func requestLogging(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrw := chimiddleware.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r)
			logger.Debug("diagnostics http request served",
				log.String("request_id", chimiddleware.GetReqID(r.Context())),
				log.String("method", r.Method),
				log.String("path", r.URL.Path),
				log.Int("status", wrw.Status()),
				log.DurationIn(time.Since(start), time.Millisecond),
			)
		})
	}
}
