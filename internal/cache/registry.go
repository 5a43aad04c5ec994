// Package cache is the keyed registry of server-derived entities. Each entry
// carries the last-fetched payload and a freshness timestamp; per-kind
// staleness windows decide when a read goes back to the network.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketsync/internal/config"
)

// ErrUnauthenticated is returned for identity-scoped kinds while the session
// store reports unauthenticated. No network call is made.
var ErrUnauthenticated = errors.New("cache: read disabled while unauthenticated")

// FetchFunc loads the current server value for one key.
type FetchFunc func(ctx context.Context) (any, error)

// identityKinds require a logged-in session to be readable at all.
var identityKinds = map[string]bool{
	KindOrders:    true,
	KindPositions: true,
	KindAccount:   true,
}

type entry struct {
	payload    any
	fetchedAt  time.Time
	lastAccess time.Time
	invalid    bool
	refreshing bool
}

// Registry is the single process-wide query cache. Concurrent refetches for
// one key are not fenced: the last response to resolve wins, which is
// acceptable because all reads are idempotent GETs.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	// gen counts Clear calls. A refetch that started before a Clear must not
	// write its result back, or evicted entries come back from the dead.
	gen     uint64
	windows map[string]time.Duration
	gate    func() bool
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg config.CacheConfig, gate func() bool, logger *zap.Logger) *Registry {
	return &Registry{
		entries: map[string]*entry{},
		windows: map[string]time.Duration{
			KindMarkets:   cfg.MarketsWindow,
			KindOrderBook: cfg.OrderbookWindow,
			KindOrders:    cfg.OrdersWindow,
			KindPositions: cfg.PositionsWindow,
			KindAccount:   cfg.AccountWindow,
			KindParties:   cfg.PartiesWindow,
		},
		gate:   gate,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Read returns the cached value for (kind, filter), fetching when needed:
//   - fresh hit: cached value, no network call
//   - past the window: cached value immediately, refetch in background
//   - invalidated: synchronous refetch (the cached value is known wrong)
//   - miss: synchronous fetch
func (r *Registry) Read(ctx context.Context, kind string, filter map[string]string, fetch FetchFunc) (any, error) {
	if identityKinds[kind] && r.gate != nil && !r.gate() {
		return nil, ErrUnauthenticated
	}
	key := Key(kind, filter)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return r.refetch(ctx, key, fetch)
	}
	now := r.now()
	e.lastAccess = now
	if e.invalid {
		r.mu.Unlock()
		return r.refetch(ctx, key, fetch)
	}
	payload := e.payload
	if now.Sub(e.fetchedAt) <= r.window(kind) {
		r.mu.Unlock()
		return payload, nil
	}
	// Stale-while-revalidate: serve the old value, refresh off the caller's
	// critical path. The refresh is not cancelled with the triggering read.
	if !e.refreshing {
		e.refreshing = true
		bg := context.WithoutCancel(ctx)
		go func() {
			if _, err := r.refetch(bg, key, fetch); err != nil && r.logger != nil {
				r.logger.Warn("background refetch failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}
	r.mu.Unlock()
	return payload, nil
}

func (r *Registry) refetch(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	payload, err := fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		// The registry was cleared while the fetch was in flight. Hand the
		// result to the caller but leave the cache alone.
		return payload, err
	}
	e, ok := r.entries[key]
	if err != nil {
		if ok {
			e.refreshing = false
		}
		return nil, err
	}
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	now := r.now()
	e.payload = payload
	e.fetchedAt = now
	e.lastAccess = now
	e.invalid = false
	e.refreshing = false
	return payload, nil
}

// Invalidate marks every entry falling under one of the prefixes (see
// MatchesPrefix) as outdated; the next read of a matching entry refetches.
// Entries of other kinds are untouched.
func (r *Registry) Invalidate(prefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.entries {
		for _, prefix := range prefixes {
			if MatchesPrefix(key, prefix) {
				e.invalid = true
				break
			}
		}
	}
}

// Merge replaces the payload of an already-cached entry with a value pushed
// from the realtime channel, resetting its freshness. Entries nobody has read
// are not created.
func (r *Registry) Merge(kind string, filter map[string]string, payload any) bool {
	key := Key(kind, filter)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	now := r.now()
	e.payload = payload
	e.fetchedAt = now
	e.invalid = false
	e.refreshing = false
	return true
}

// Clear evicts everything. Called on logout.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = map[string]*entry{}
	r.gen++
	r.mu.Unlock()
}

// Sweep drops entries not read within maxIdle and returns how many were
// evicted. Run periodically by the janitor.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	evicted := 0
	for key, e := range r.entries {
		if e.lastAccess.Before(cutoff) {
			delete(r.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of cached entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) window(kind string) time.Duration {
	if w, ok := r.windows[kind]; ok && w > 0 {
		return w
	}
	return 30 * time.Second
}

// ReadAs is the typed wrapper around Registry.Read.
func ReadAs[T any](ctx context.Context, r *Registry, kind string, filter map[string]string, fetch func(ctx context.Context) (T, error)) (T, error) {
	payload, err := r.Read(ctx, kind, filter, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value, ok := payload.(T)
	if !ok {
		var zero T
		return zero, errors.New("cache: payload type mismatch for " + kind)
	}
	return value, nil
}
