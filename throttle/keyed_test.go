/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storescrape/scrapekit/log"
	"github.com/storescrape/scrapekit/log/logtest"
)

type pageRequest struct {
	host string
	path string
}

func fetchPage(_ context.Context, req pageRequest) (string, error) {
	return req.host + req.path, nil
}

func hostKey(req pageRequest) string {
	return req.host
}

func TestKeyed(t *testing.T) {
	t.Run("keys are throttled independently", func(t *testing.T) {
		keyed, err := NewKeyed(fetchPage, Config{Limit: 1, Interval: time.Hour}, hostKey)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, host := range []string{"apps.example.com", "play.example.com", "store.example.com"} {
			res, doErr := keyed.Do(ctx, pageRequest{host: host, path: "/top"})
			require.NoError(t, doErr)
			require.Equal(t, host+"/top", res)
		}
		require.Equal(t, 3, keyed.Len())

		f, err := keyed.Submit(ctx, pageRequest{host: "apps.example.com", path: "/new"})
		require.NoError(t, err)
		require.Equal(t, JobPending, f.State())

		st, ok := keyed.Stats("apps.example.com")
		require.True(t, ok)
		require.Equal(t, 1, st.QueueDepth)
		st, ok = keyed.Stats("play.example.com")
		require.True(t, ok)
		require.Equal(t, 0, st.QueueDepth)
		_, ok = keyed.Stats("unknown.example.com")
		require.False(t, ok)
	})

	t.Run("per-key configuration", func(t *testing.T) {
		keyed, err := NewKeyedWithOpts(fetchPage, Config{Limit: 1, Interval: time.Hour}, hostKey, KeyedOpts{
			KeyConfigs: map[string]Config{"fast.example.com": {Limit: 10, Interval: time.Second}},
		})
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			f, submitErr := keyed.Submit(context.Background(), pageRequest{host: "fast.example.com"})
			require.NoError(t, submitErr)
			require.NotEqual(t, JobPending, f.State())
		}
		f, err := keyed.Submit(context.Background(), pageRequest{host: "slow.example.com"})
		require.NoError(t, err)
		require.NotEqual(t, JobPending, f.State())
		f, err = keyed.Submit(context.Background(), pageRequest{host: "slow.example.com"})
		require.NoError(t, err)
		require.Equal(t, JobPending, f.State())
	})

	t.Run("least recently used keys are evicted", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		keyed, err := NewKeyedWithOpts(fetchPage, Config{Limit: 5, Interval: time.Second}, hostKey, KeyedOpts{
			MaxKeys: 2,
			Logger:  logRecorder,
		})
		require.NoError(t, err)

		for _, host := range []string{"a.example.com", "b.example.com", "a.example.com", "c.example.com"} {
			_, doErr := keyed.Do(context.Background(), pageRequest{host: host})
			require.NoError(t, doErr)
		}
		require.Equal(t, 2, keyed.Len())
		_, ok := keyed.Stats("b.example.com")
		require.False(t, ok)
		_, ok = keyed.Stats("a.example.com")
		require.True(t, ok)

		entry, found := logRecorder.FindEntry("per-key throttle evicted")
		require.True(t, found)
		evictedKey, found := entry.FieldString("key")
		require.True(t, found)
		require.Equal(t, "b.example.com", evictedKey)
	})

	t.Run("evicted key with queued calls keeps its throttle", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		keyed, err := NewKeyedWithOpts(fetchPage, Config{Limit: 1, Interval: time.Hour}, hostKey, KeyedOpts{
			MaxKeys: 1,
			Logger:  logRecorder,
		})
		require.NoError(t, err)

		ctx := context.Background()
		f, err := keyed.Submit(ctx, pageRequest{host: "a.example.com", path: "/top"})
		require.NoError(t, err)
		require.NotEqual(t, JobPending, f.State())
		queued, err := keyed.Submit(ctx, pageRequest{host: "a.example.com", path: "/new"})
		require.NoError(t, err)
		require.Equal(t, JobPending, queued.State())

		// b evicts a from the cache, but a still has a queued call.
		_, err = keyed.Submit(ctx, pageRequest{host: "b.example.com"})
		require.NoError(t, err)
		require.Equal(t, 2, keyed.Len())
		st, ok := keyed.Stats("a.example.com")
		require.True(t, ok)
		require.Equal(t, 1, st.QueueDepth)

		entry, found := logRecorder.FindEntry("per-key throttle evicted with queued calls, kept until drained")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)
		queueDepth, found := entry.FieldInt("queue_depth")
		require.True(t, found)
		require.Equal(t, int64(1), queueDepth)

		// The window of a is still exhausted, so the next call queues behind the first one.
		next, err := keyed.Submit(ctx, pageRequest{host: "a.example.com", path: "/paid"})
		require.NoError(t, err)
		require.Equal(t, JobPending, next.State())
		st, ok = keyed.Stats("a.example.com")
		require.True(t, ok)
		require.Equal(t, 2, st.QueueDepth)
		require.Equal(t, uint64(1), st.Admitted)
	})

	t.Run("glob key configs", func(t *testing.T) {
		keyed, err := NewKeyedWithOpts(fetchPage, Config{Limit: 1, Interval: time.Hour}, hostKey, KeyedOpts{
			KeyConfigs: map[string]Config{
				"*.example.com":         {Limit: 5, Interval: time.Second},
				"*.images.example.com":  {Limit: 20, Interval: time.Second},
				"play.example.com":      {Limit: 2, Interval: time.Minute},
				"*.googleusercontent.*": {Limit: 50, Interval: time.Second},
			},
		})
		require.NoError(t, err)

		require.Equal(t, Config{Limit: 2, Interval: time.Minute}, keyed.ConfigFor("play.example.com"))
		require.Equal(t, Config{Limit: 5, Interval: time.Second}, keyed.ConfigFor("apps.example.com"))
		require.Equal(t, Config{Limit: 20, Interval: time.Second}, keyed.ConfigFor("cdn.images.example.com"))
		require.Equal(t, Config{Limit: 50, Interval: time.Second}, keyed.ConfigFor("lh3.googleusercontent.com"))
		require.Equal(t, Config{Limit: 1, Interval: time.Hour}, keyed.ConfigFor("example.org"))

		for i := 0; i < 5; i++ {
			f, submitErr := keyed.Submit(context.Background(), pageRequest{host: "apps.example.com"})
			require.NoError(t, submitErr)
			require.NotEqual(t, JobPending, f.State())
		}
		f, err := keyed.Submit(context.Background(), pageRequest{host: "apps.example.com"})
		require.NoError(t, err)
		require.Equal(t, JobPending, f.State())
	})

	t.Run("options are applied to every key", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		keyed, err := NewKeyedWithOpts(fetchPage, Config{Limit: 1, Interval: 20 * time.Millisecond}, hostKey, KeyedOpts{
			Options: []Option{WithLogger(logRecorder)},
		})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, doErr := keyed.Do(context.Background(), pageRequest{host: "apps.example.com"})
			require.NoError(t, doErr)
		}
		entries := logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
			nameField, found := entry.FindField("throttle")
			return found && string(nameField.Bytes) == "apps.example.com"
		})
		require.NotEmpty(t, entries)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		validCfg := Config{Limit: 1, Interval: time.Second}
		tests := []struct {
			name   string
			op     Operation[pageRequest, string]
			cfg    Config
			keyFn  func(pageRequest) string
			opts   KeyedOpts
			errMsg string
		}{
			{"nil operation", nil, validCfg, hostKey, KeyedOpts{}, "operation must not be nil"},
			{"nil key function", fetchPage, validCfg, nil, KeyedOpts{}, "key function must not be nil"},
			{"invalid config", fetchPage, Config{Interval: time.Second}, hostKey, KeyedOpts{}, "limit must be positive"},
			{"invalid key config", fetchPage, validCfg, hostKey,
				KeyedOpts{KeyConfigs: map[string]Config{"a.example.com": {Limit: 1}}}, `config for key "a.example.com"`},
			{"negative max keys", fetchPage, validCfg, hostKey, KeyedOpts{MaxKeys: -1}, "max keys must not be negative"},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				keyed, err := NewKeyedWithOpts(tt.op, tt.cfg, tt.keyFn, tt.opts)
				require.Nil(t, keyed)
				require.True(t, errors.Is(err, ErrInvalidConfig))
				require.True(t, strings.Contains(err.Error(), tt.errMsg), err.Error())
			})
		}
	})
}
