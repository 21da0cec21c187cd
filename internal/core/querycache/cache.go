// Package querycache memoizes read queries behind segment keys and drops them
// when mutations make them stale.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeStale = "stale"
)

// Recorder receives cache observations. metrics.HTTPServerMetrics satisfies it.
type Recorder interface {
	RecordCacheLookup(scope, outcome string)
	RecordCacheInvalidation(scope string, removed int)
}

type Fetcher func(ctx context.Context) (any, error)

// ErrTypeMismatch means two callers stored different value types under one key.
var ErrTypeMismatch = errors.New("querycache: cached value has unexpected type")

type Options struct {
	DefaultStaleAfter time.Duration
	// StaleAfter overrides DefaultStaleAfter per scope (first key segment).
	StaleAfter   map[string]time.Duration
	FetchTimeout time.Duration
	Recorder     Recorder
	Logger       *slog.Logger
	Now          func() time.Time
}

type entry struct {
	key       Key
	value     any
	fetchedAt time.Time
}

type flight struct {
	key     Key
	dropped bool
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*flight
	group    singleflight.Group

	defaultStale time.Duration
	staleAfter   map[string]time.Duration
	fetchTimeout time.Duration
	recorder     Recorder
	logger       *slog.Logger
	now          func() time.Time
}

func New(opts Options) *Cache {
	if opts.DefaultStaleAfter <= 0 {
		opts.DefaultStaleAfter = 10 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	stale := make(map[string]time.Duration, len(opts.StaleAfter))
	for scope, d := range opts.StaleAfter {
		stale[scope] = d
	}
	return &Cache{
		entries:      make(map[string]*entry),
		inflight:     make(map[string]*flight),
		defaultStale: opts.DefaultStaleAfter,
		staleAfter:   stale,
		fetchTimeout: opts.FetchTimeout,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// Get returns the cached value for key or loads it with fetch. Identical
// concurrent loads share one fetch. A stale entry is returned as is while a
// refresh runs in the background. When ctx ends first Get returns ctx.Err()
// and the shared fetch keeps running for other callers.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	id := key.String()
	scope := key.Scope()

	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()

	if ok {
		if c.now().Sub(e.fetchedAt) < c.windowFor(scope) {
			c.record(scope, OutcomeHit)
			return e.value, nil
		}
		c.record(scope, OutcomeStale)
		c.load(ctx, key, fetch)
		return e.value, nil
	}

	c.record(scope, OutcomeMiss)
	select {
	case res := <-c.load(ctx, key, fetch):
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch is the typed form of Cache.Get.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %s holds %T, want %T", ErrTypeMismatch, strings.Join(key, "/"), v, zero)
	}
	return out, nil
}

// Refresh reloads key unconditionally and waits for the result.
func (c *Cache) Refresh(ctx context.Context, key Key, fetch Fetcher) error {
	select {
	case res := <-c.load(ctx, key, fetch):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, key Key, fetch Fetcher) <-chan singleflight.Result {
	id := key.String()
	base := context.WithoutCancel(ctx)

	return c.group.DoChan(id, func() (any, error) {
		f := &flight{key: key}
		c.mu.Lock()
		c.inflight[id] = f
		c.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(base, c.fetchTimeout)
		defer cancel()
		value, err := fetch(fetchCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.inflight[id] == f {
			delete(c.inflight, id)
		}
		if err != nil {
			c.logger.Debug("cache fetch failed", "key", id, "error", err)
			return nil, err
		}
		if !f.dropped {
			c.entries[id] = &entry{key: key, value: value, fetchedAt: c.now()}
		}
		return value, nil
	})
}

// Invalidate drops every entry whose key starts with prefix. Fetches for
// matching keys that are still running will not be stored, and later Gets
// start a new fetch.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	removed := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			removed++
		}
	}
	for id, f := range c.inflight {
		if f.key.HasPrefix(prefix) {
			f.dropped = true
			delete(c.inflight, id)
			c.group.Forget(id)
		}
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordCacheInvalidation(prefix.Scope(), removed)
	}
	return removed
}

// InvalidateAfter applies the invalidation rules for a mutation.
func (c *Cache) InvalidateAfter(m Mutation) {
	for _, prefix := range invalidations[m] {
		c.Invalidate(prefix)
	}
	c.logger.Debug("cache invalidated", "mutation", string(m))
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) windowFor(scope string) time.Duration {
	if d, ok := c.staleAfter[scope]; ok && d > 0 {
		return d
	}
	return c.defaultStale
}

func (c *Cache) record(scope, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(scope, outcome)
	}
}

// Key is an ordered list of segments. The first segment is the scope.
type Key []string

const keySeparator = "\x1f"

func (k Key) String() string { return strings.Join(k, keySeparator) }

func (k Key) Scope() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// HasPrefix matches whole segments, so "invoice" does not match "invoices".
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
