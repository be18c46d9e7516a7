/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

// Command throttleprobe fetches the given URLs through a throttled HTTP client
// and reports when every request finished. It is used to check a throttle configuration
// against a real storefront before putting it into a scraper.
//
//	throttleprobe --rate 1/500ms --per-host https://play.example.com/store/apps https://apps.example.com/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	golog "log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/storescrape/scrapekit/config"
	"github.com/storescrape/scrapekit/diagserver"
	"github.com/storescrape/scrapekit/httpclient"
	"github.com/storescrape/scrapekit/log"
	"github.com/storescrape/scrapekit/throttle"
)

const envVarsPrefix = "SCRAPEKIT"

type flags struct {
	configPath string
	rate       string
	perHost    bool
	diagAddr   string
	hold       time.Duration
	urls       []string
}

func main() {
	if err := runApp(os.Args[1:]); err != nil {
		golog.Fatal(err)
	}
}

func runApp(args []string) error {
	f, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadAppConfig(f)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	throttleMetrics := throttle.NewPrometheusMetrics()
	throttleMetrics.MustRegister()
	defer throttleMetrics.Unregister()
	requestMetrics := httpclient.NewPrometheusMetrics()
	requestMetrics.MustRegister()
	defer requestMetrics.Unregister()

	fatalErr := make(chan error, 1)
	if cfg.Diag.Enabled {
		diagServer := diagserver.New(cfg.Diag, logger, nil)
		go diagServer.Start(fatalErr)
		defer func() {
			if stopErr := diagServer.Stop(); stopErr != nil {
				logger.Error("failed to stop diagnostics server", log.Error(stopErr))
			}
		}()
	}

	client, err := httpclient.NewWithOpts(cfg.HTTPClient, httpclient.Opts{
		Logger:          logger,
		Collector:       requestMetrics,
		ThrottleMetrics: throttleMetrics,
	})
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	probe(ctx, client, f.urls, logger, os.Stdout)

	if f.hold > 0 && cfg.Diag.Enabled {
		logger.Info("holding diagnostics server", log.Duration("hold", f.hold))
		select {
		case <-time.After(f.hold):
		case <-ctx.Done():
		case err = <-fatalErr:
			return err
		}
	}
	return nil
}

func parseFlags(args []string, usageOut io.Writer) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("throttleprobe", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML or JSON configuration file")
	fs.StringVarP(&f.rate, "rate", "r", "1/s", "request rate, for example 10/s, 100/m, 1/500ms")
	fs.BoolVar(&f.perHost, "per-host", false, "throttle every host independently")
	fs.StringVar(&f.diagAddr, "diag-addr", "", "serve metrics and profiles on this address")
	fs.DurationVar(&f.hold, "hold", 0, "keep the diagnostics server running after probing")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(usageOut, "Usage: throttleprobe [flags] URL...\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.urls = fs.Args()
	if len(f.urls) == 0 {
		fs.Usage()
		return f, errors.New("at least one URL is required")
	}
	if fs.Changed("rate") || f.configPath == "" {
		if _, err := throttle.ParseRate(f.rate); err != nil {
			return f, fmt.Errorf("invalid --rate: %w", err)
		}
	} else {
		f.rate = ""
	}
	return f, nil
}

// AppConfig is the configuration of throttleprobe.
type AppConfig struct {
	Log        *log.Config
	HTTPClient *httpclient.Config
	Diag       *diagserver.Config
}

func loadAppConfig(f flags) (*AppConfig, error) {
	cfg := &AppConfig{
		Log:        log.NewConfig(""),
		HTTPClient: httpclient.NewConfigWithKeyPrefix("httpClient"),
		Diag:       diagserver.NewConfig(""),
	}
	loader := config.NewDefaultLoader(envVarsPrefix)
	var err error
	if f.configPath != "" {
		err = loader.LoadFromFile(f.configPath, "", cfg.Log, cfg.HTTPClient, cfg.Diag)
	} else {
		err = loader.Load(cfg.Log, cfg.HTTPClient, cfg.Diag)
	}
	if err != nil {
		return nil, err
	}

	// Flags take precedence over the file and the environment.
	if f.rate != "" {
		r, parseErr := throttle.ParseRate(f.rate)
		if parseErr != nil {
			return nil, parseErr
		}
		throttleCfg := cfg.HTTPClient.Throttle.Throttle
		throttleCfg.Limit, throttleCfg.Interval = r.Count, r.Duration
		if err = throttleCfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --rate: %w", err)
		}
		cfg.HTTPClient.Throttle.Enabled = true
		cfg.HTTPClient.Throttle.Throttle = throttleCfg
	}
	if f.perHost {
		cfg.HTTPClient.Throttle.PerHost = true
	}
	if f.diagAddr != "" {
		cfg.Diag.Enabled = true
		cfg.Diag.Address = f.diagAddr
	}
	cfg.HTTPClient.Metrics.Enabled = true
	return cfg, nil
}

type probeResult struct {
	url       string
	status    int
	err       error
	startedAt time.Time
	elapsed   time.Duration
}

func probe(ctx context.Context, client *http.Client, urls []string, logger log.FieldLogger, out io.Writer) {
	start := time.Now()
	results := make([]probeResult, len(urls))
	var wg sync.WaitGroup
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fetch(ctx, client, urls[i])
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			logger.Error("probe request failed", log.String("url", res.url), log.Error(res.err))
			_, _ = fmt.Fprintf(out, "%-60s  error: %v\n", res.url, res.err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%-60s  status=%d  done_at=+%s  took=%s\n",
			res.url, res.status, res.startedAt.Add(res.elapsed).Sub(start).Round(time.Millisecond),
			res.elapsed.Round(time.Millisecond))
	}
}

func fetch(ctx context.Context, client *http.Client, rawURL string) (res probeResult) {
	res = probeResult{url: rawURL, startedAt: time.Now()}
	defer func() { res.elapsed = time.Since(res.startedAt) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.err = err
		return res
	}
	resp, err := client.Do(req)
	if err != nil {
		res.err = err
		return res
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	res.status = resp.StatusCode
	return res
}
