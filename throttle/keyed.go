/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/vasayxtx/go-glob"

	"github.com/storescrape/scrapekit/log"
)

// DefaultMaxKeys is the default number of keys a Keyed throttle keeps.
const DefaultMaxKeys = 10000

// KeyedOpts represents options for Keyed.
type KeyedOpts struct {
	// MaxKeys is the number of per-key throttles kept in memory (least recently used are evicted).
	// A throttle evicted while it still has queued calls is kept aside and reused for its key
	// until the queue drains. An idle evicted key starts with a fresh window when it is seen again.
	// DefaultMaxKeys is used if 0.
	MaxKeys int

	// KeyConfigs overrides the configuration for particular keys.
	// A key containing "*" is a glob pattern (e.g. "*.example.com").
	// An exact key wins over patterns, and the longest matching pattern wins over shorter ones.
	KeyConfigs map[string]Config

	// Options are applied to every per-key throttle. WithAdmitter must not be used here.
	Options []Option

	// Logger is used for eviction diagnostics.
	Logger log.FieldLogger
}

// Keyed keeps an independent Throttle per key, e.g. per remote host.
// Calls with different keys never share a window or a queue.
type Keyed[A, R any] struct {
	op         Operation[A, R]
	cfg        Config
	keyConfigs keyConfigMatcher
	keyFn      func(A) string
	opts       []Option
	logger     log.FieldLogger

	mu        sync.Mutex
	throttles *lru.Cache
	draining  map[string]*Throttle[A, R]
}

// NewKeyed creates a new Keyed throttle. keyFn maps call arguments to a key.
func NewKeyed[A, R any](op Operation[A, R], cfg Config, keyFn func(A) string) (*Keyed[A, R], error) {
	return NewKeyedWithOpts[A, R](op, cfg, keyFn, KeyedOpts{})
}

// NewKeyedWithOpts creates a new Keyed throttle with the provided options.
func NewKeyedWithOpts[A, R any](op Operation[A, R], cfg Config, keyFn func(A) string, opts KeyedOpts) (*Keyed[A, R], error) {
	if op == nil {
		return nil, configErrorf("operation must not be nil")
	}
	if keyFn == nil {
		return nil, configErrorf("key function must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for key, keyCfg := range opts.KeyConfigs {
		keyCfg := keyCfg
		if err := keyCfg.Validate(); err != nil {
			return nil, fmt.Errorf("config for key %q: %w", key, err)
		}
	}
	if opts.MaxKeys < 0 {
		return nil, configErrorf("max keys must not be negative, got %d", opts.MaxKeys)
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	k := &Keyed[A, R]{
		op:         op,
		cfg:        cfg,
		keyConfigs: newKeyConfigMatcher(opts.KeyConfigs),
		keyFn:      keyFn,
		opts:       opts.Options,
		logger:     logger,
		draining:   make(map[string]*Throttle[A, R]),
	}
	throttles, err := lru.NewWithEvict(opts.MaxKeys, k.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("new LRU cache for keys: %w", err)
	}
	k.throttles = throttles
	return k, nil
}

// Submit queues a call in the throttle of its key.
func (k *Keyed[A, R]) Submit(ctx context.Context, args A) (*Future[R], error) {
	t, err := k.throttleFor(k.keyFn(args))
	if err != nil {
		return nil, err
	}
	return t.Submit(ctx, args)
}

// Do queues a call in the throttle of its key and waits for its result.
func (k *Keyed[A, R]) Do(ctx context.Context, args A) (R, error) {
	t, err := k.throttleFor(k.keyFn(args))
	if err != nil {
		var zero R
		return zero, err
	}
	return t.Do(ctx, args)
}

// Len returns the number of keys currently kept, including evicted keys whose queue is not drained yet.
func (k *Keyed[A, R]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.throttles.Len() + len(k.draining)
}

// Stats returns a snapshot of the throttle for the key, if it exists.
func (k *Keyed[A, R]) Stats(key string) (Stats, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.throttles.Peek(key); ok {
		return v.(*Throttle[A, R]).Stats(), true
	}
	if t, ok := k.draining[key]; ok {
		return t.Stats(), true
	}
	return Stats{}, false
}

// ConfigFor returns the configuration used for the key.
func (k *Keyed[A, R]) ConfigFor(key string) Config {
	if cfg, ok := k.keyConfigs.match(key); ok {
		return cfg
	}
	return k.cfg
}

func (k *Keyed[A, R]) throttleFor(key string) (*Throttle[A, R], error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if v, ok := k.throttles.Get(key); ok {
		return v.(*Throttle[A, R]), nil
	}
	if t, ok := k.draining[key]; ok {
		delete(k.draining, key)
		k.throttles.Add(key, t)
		return t, nil
	}
	k.pruneDrainingLocked()

	t, err := New(k.op, k.ConfigFor(key), append([]Option{WithName(key)}, k.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("new throttle for key %q: %w", key, err)
	}
	k.throttles.Add(key, t)
	return t, nil
}

// onEvicted is called by the LRU cache while k.mu is held.
func (k *Keyed[A, R]) onEvicted(key interface{}, value interface{}) {
	keyStr := key.(string)
	t := value.(*Throttle[A, R])
	queueDepth := t.Stats().QueueDepth
	if queueDepth > 0 {
		// A fresh throttle for the same key would admit calls next to the queued ones.
		k.draining[keyStr] = t
		k.logger.Warn("per-key throttle evicted with queued calls, kept until drained",
			log.String("key", keyStr), log.Int("queue_depth", queueDepth))
		return
	}
	k.logger.Debug("per-key throttle evicted", log.String("key", keyStr), log.Int("queue_depth", 0))
}

func (k *Keyed[A, R]) pruneDrainingLocked() {
	for key, t := range k.draining {
		if t.Stats().QueueDepth == 0 {
			delete(k.draining, key)
		}
	}
}

type keyPattern struct {
	pattern string
	match   func(string) bool
	cfg     Config
}

// keyConfigMatcher resolves per-key configuration by exact key first and then by glob patterns.
type keyConfigMatcher struct {
	exact    map[string]Config
	patterns []keyPattern
}

func newKeyConfigMatcher(keyConfigs map[string]Config) keyConfigMatcher {
	m := keyConfigMatcher{exact: make(map[string]Config, len(keyConfigs))}
	for key, cfg := range keyConfigs {
		if !strings.Contains(key, "*") {
			m.exact[key] = cfg
			continue
		}
		m.patterns = append(m.patterns, keyPattern{pattern: key, match: glob.Compile(key), cfg: cfg})
	}
	sort.Slice(m.patterns, func(i, j int) bool {
		if len(m.patterns[i].pattern) != len(m.patterns[j].pattern) {
			return len(m.patterns[i].pattern) > len(m.patterns[j].pattern)
		}
		return m.patterns[i].pattern < m.patterns[j].pattern
	})
	return m
}

func (m keyConfigMatcher) match(key string) (Config, bool) {
	if cfg, ok := m.exact[key]; ok {
		return cfg, true
	}
	for i := range m.patterns {
		if m.patterns[i].match(key) {
			return m.patterns[i].cfg, true
		}
	}
	return Config{}, false
}
