package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketsync/internal/config"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		MarketsWindow:   time.Minute,
		OrderbookWindow: 15 * time.Second,
		OrdersWindow:    30 * time.Second,
		PositionsWindow: 30 * time.Second,
		AccountWindow:   30 * time.Second,
		PartiesWindow:   5 * time.Minute,
		MaxIdle:         30 * time.Minute,
	}
}

type countingFetch struct {
	mu    sync.Mutex
	calls int
	value any
	err   error
}

func (f *countingFetch) fetch(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.value != nil {
		return f.value, nil
	}
	return f.calls, nil
}

func (f *countingFetch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestReadFreshHitSkipsNetwork(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(testCacheConfig(), nil, nil)
	r.SetClock(func() time.Time { return now })

	f := &countingFetch{}
	ctx := context.Background()

	v, err := r.Read(ctx, KindMarkets, nil, f.fetch)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if v != 1 {
		t.Fatalf("first read = %v, want 1", v)
	}

	now = now.Add(30 * time.Second) // inside the 60s markets window
	v, err = r.Read(ctx, KindMarkets, nil, f.fetch)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if v != 1 {
		t.Fatalf("second read = %v, want cached 1", v)
	}
	if f.count() != 1 {
		t.Fatalf("fetch called %d times, want 1", f.count())
	}
}

func TestReadPastWindowRevalidates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(testCacheConfig(), nil, nil)
	r.SetClock(func() time.Time { return now })

	f := &countingFetch{}
	ctx := context.Background()

	if _, err := r.Read(ctx, KindMarkets, nil, f.fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}

	now = now.Add(2 * time.Minute)
	v, err := r.Read(ctx, KindMarkets, nil, f.fetch)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if v != 1 {
		t.Fatalf("stale read = %v, want old value 1 while revalidating", v)
	}

	// The refresh runs off the caller's path; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, err = r.Read(ctx, KindMarkets, nil, f.fetch)
		if err != nil {
			t.Fatalf("follow-up read: %v", err)
		}
		if v == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background refetch never landed, last value %v", v)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReadInvalidatedRefetchesSynchronously(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	f := &countingFetch{}
	ctx := context.Background()

	if _, err := r.Read(ctx, KindAccount, nil, f.fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}
	r.Invalidate(KindAccount)

	v, err := r.Read(ctx, KindAccount, nil, f.fetch)
	if err != nil {
		t.Fatalf("read after invalidate: %v", err)
	}
	if v != 2 {
		t.Fatalf("read after invalidate = %v, want refetched 2", v)
	}
}

func TestInvalidatePrefixScoping(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	posM1 := &countingFetch{}
	posM2 := &countingFetch{}
	markets := &countingFetch{}

	if _, err := r.Read(ctx, KindPositions, map[string]string{"marketId": "M1"}, posM1.fetch); err != nil {
		t.Fatalf("seed positions M1: %v", err)
	}
	if _, err := r.Read(ctx, KindPositions, map[string]string{"marketId": "M2"}, posM2.fetch); err != nil {
		t.Fatalf("seed positions M2: %v", err)
	}
	if _, err := r.Read(ctx, KindMarkets, nil, markets.fetch); err != nil {
		t.Fatalf("seed markets: %v", err)
	}

	// A bare kind prefix hits every filter variant of that kind.
	r.Invalidate(KindPositions)

	if _, err := r.Read(ctx, KindPositions, map[string]string{"marketId": "M1"}, posM1.fetch); err != nil {
		t.Fatalf("reread positions M1: %v", err)
	}
	if _, err := r.Read(ctx, KindPositions, map[string]string{"marketId": "M2"}, posM2.fetch); err != nil {
		t.Fatalf("reread positions M2: %v", err)
	}
	if _, err := r.Read(ctx, KindMarkets, nil, markets.fetch); err != nil {
		t.Fatalf("reread markets: %v", err)
	}

	if posM1.count() != 2 || posM2.count() != 2 {
		t.Fatalf("positions fetch counts = %d/%d, want 2/2", posM1.count(), posM2.count())
	}
	if markets.count() != 1 {
		t.Fatalf("markets fetch count = %d, want 1 (untouched by positions invalidation)", markets.count())
	}
}

func TestInvalidateExactKeyLeavesSiblings(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	bookM1 := &countingFetch{}
	bookM10 := &countingFetch{}
	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, bookM1.fetch); err != nil {
		t.Fatalf("seed book M1: %v", err)
	}
	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M10"}, bookM10.fetch); err != nil {
		t.Fatalf("seed book M10: %v", err)
	}

	r.Invalidate(Key(KindOrderBook, map[string]string{"marketId": "M1"}))

	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, bookM1.fetch); err != nil {
		t.Fatalf("reread book M1: %v", err)
	}
	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M10"}, bookM10.fetch); err != nil {
		t.Fatalf("reread book M10: %v", err)
	}
	if bookM1.count() != 2 {
		t.Fatalf("book M1 fetch count = %d, want 2", bookM1.count())
	}
	// M10 shares M1 as a textual prefix but is a different market.
	if bookM10.count() != 1 {
		t.Fatalf("book M10 fetch count = %d, want 1", bookM10.count())
	}
}

func TestReadGatedWhileUnauthenticated(t *testing.T) {
	authed := false
	r := New(testCacheConfig(), func() bool { return authed }, nil)
	f := &countingFetch{}
	ctx := context.Background()

	for _, kind := range []string{KindOrders, KindPositions, KindAccount} {
		if _, err := r.Read(ctx, kind, nil, f.fetch); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s read while unauthenticated: err = %v, want ErrUnauthenticated", kind, err)
		}
	}
	if f.count() != 0 {
		t.Fatalf("fetch called %d times for gated kinds, want 0", f.count())
	}

	// Public kinds are not gated.
	if _, err := r.Read(ctx, KindMarkets, nil, f.fetch); err != nil {
		t.Fatalf("markets read while unauthenticated: %v", err)
	}

	authed = true
	if _, err := r.Read(ctx, KindPositions, nil, f.fetch); err != nil {
		t.Fatalf("positions read after login: %v", err)
	}
}

func TestReadFetchErrorLeavesNoEntry(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	f := &countingFetch{err: errors.New("engine down")}
	if _, err := r.Read(ctx, KindMarkets, nil, f.fetch); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if r.Len() != 0 {
		t.Fatalf("registry holds %d entries after failed fetch, want 0", r.Len())
	}

	f.err = nil
	if _, err := r.Read(ctx, KindMarkets, nil, f.fetch); err != nil {
		t.Fatalf("read after recovery: %v", err)
	}
}

func TestMerge(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	if r.Merge(KindOrderBook, map[string]string{"marketId": "M1"}, "pushed") {
		t.Fatal("Merge created an entry nobody has read")
	}

	f := &countingFetch{value: "fetched"}
	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, f.fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}
	if !r.Merge(KindOrderBook, map[string]string{"marketId": "M1"}, "pushed") {
		t.Fatal("Merge rejected an existing entry")
	}

	v, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, f.fetch)
	if err != nil {
		t.Fatalf("read after merge: %v", err)
	}
	if v != "pushed" {
		t.Fatalf("read after merge = %v, want pushed", v)
	}
	if f.count() != 1 {
		t.Fatalf("fetch count = %d after merge, want 1", f.count())
	}
}

func TestMergeClearsInvalidation(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	f := &countingFetch{}
	if _, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, f.fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}
	r.Invalidate(KindOrderBook)
	r.Merge(KindOrderBook, map[string]string{"marketId": "M1"}, "pushed")

	v, err := r.Read(ctx, KindOrderBook, map[string]string{"marketId": "M1"}, f.fetch)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != "pushed" || f.count() != 1 {
		t.Fatalf("read = %v with %d fetches, want pushed with 1", v, f.count())
	}
}

// A background revalidation that started before logout must not write its
// result back into the cleared registry: that would hand the previous
// session's identity-scoped data to the next login as a fresh hit.
func TestClearNotDefeatedByInflightRefetch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(testCacheConfig(), nil, nil)
	r.SetClock(func() time.Time { return now })
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	started := make(chan struct{})
	release := make(chan struct{})
	returned := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			close(started)
			<-release
			defer close(returned)
		}
		return n, nil
	}

	if _, err := r.Read(ctx, KindPositions, nil, fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}

	// Go stale so the next read kicks off a background refetch, then clear
	// while that refetch is still blocked.
	now = now.Add(2 * time.Minute)
	if _, err := r.Read(ctx, KindPositions, nil, fetch); err != nil {
		t.Fatalf("stale read: %v", err)
	}
	<-started
	r.Clear()
	if n := r.Len(); n != 0 {
		t.Fatalf("Len() = %d right after Clear, want 0", n)
	}
	close(release)
	<-returned

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n := r.Len(); n != 0 {
			t.Fatalf("cleared registry holds %d entries: in-flight refetch wrote back evicted data", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The next read must go to the network, not to a resurrected payload.
	v, err := r.Read(ctx, KindPositions, nil, fetch)
	if err != nil {
		t.Fatalf("read after clear: %v", err)
	}
	if v != 3 {
		t.Fatalf("read after clear = %v, want freshly fetched 3", v)
	}
}

func TestClear(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()
	f := &countingFetch{}

	if _, err := r.Read(ctx, KindMarkets, nil, f.fetch); err != nil {
		t.Fatalf("seed read: %v", err)
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", r.Len())
	}
}

func TestSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(testCacheConfig(), nil, nil)
	r.SetClock(func() time.Time { return now })
	ctx := context.Background()

	idle := &countingFetch{}
	active := &countingFetch{}
	if _, err := r.Read(ctx, KindMarkets, nil, idle.fetch); err != nil {
		t.Fatalf("seed idle: %v", err)
	}
	if _, err := r.Read(ctx, KindParties, nil, active.fetch); err != nil {
		t.Fatalf("seed active: %v", err)
	}

	now = now.Add(20 * time.Minute)
	if _, err := r.Read(ctx, KindParties, nil, active.fetch); err != nil {
		t.Fatalf("touch active: %v", err)
	}

	now = now.Add(15 * time.Minute)
	if evicted := r.Sweep(30 * time.Minute); evicted != 1 {
		t.Fatalf("Sweep evicted %d entries, want 1", evicted)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d after sweep, want 1", r.Len())
	}
}

func TestReadAsTypeMismatch(t *testing.T) {
	r := New(testCacheConfig(), nil, nil)
	ctx := context.Background()

	_, err := ReadAs(ctx, r, KindMarkets, nil, func(context.Context) (string, error) {
		return "value", nil
	})
	if err != nil {
		t.Fatalf("typed read: %v", err)
	}
	// Same key now holds a string; asking for an int must fail loudly.
	_, err = ReadAs(ctx, r, KindMarkets, nil, func(context.Context) (int, error) {
		return 0, nil
	})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}
