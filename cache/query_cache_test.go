package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/types"
)

func newTestCache(t *testing.T) *QueryCache {
	t.Helper()

	c, err := NewQueryCache(context.Background(), logger.NewNop(), &types.CacheConfig{
		DefaultStaleness: types.Duration(time.Hour),
		EvictionGrace:    types.Duration(time.Minute),
	}, nil)
	if err != nil {
		t.Fatalf("NewQueryCache failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if c.IsRunning() {
			_ = c.Stop()
		}
	})
	return c
}

func waitForStatus(t *testing.T, c *QueryCache, key types.CacheKey, status types.CacheStatus) types.EntryView {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if view, ok := c.GetEntry(key); ok && view.Status == status {
			return view
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("entry %q never reached status %q", key, status)
	return types.EntryView{}
}

func waitForCalls(t *testing.T, calls *int32, want int32) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(calls) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("fetch count = %d, want %d", atomic.LoadInt32(calls), want)
}

func TestSubscribeSharesOneFetch(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("posts|page=1")

	var calls int32
	gate := make(chan struct{})
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return types.FetchResult{Data: "payload", Tags: []types.Tag{types.PostListTag()}}, nil
	}

	sub1, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	defer sub1.Unsubscribe()

	sub2, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}
	defer sub2.Unsubscribe()

	if got := sub2.Current().Status; got != types.StatusLoading {
		t.Errorf("status while in flight = %q, want %q", got, types.StatusLoading)
	}

	close(gate)
	view := waitForStatus(t, c, key, types.StatusSuccess)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher ran %d times, want 1", got)
	}
	if view.Subscribers != 2 {
		t.Errorf("subscribers = %d, want 2", view.Subscribers)
	}
	if view.Data != "payload" {
		t.Errorf("data = %v, want %q", view.Data, "payload")
	}
}

func TestSettledEntryServesWithoutRefetch(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("posts|page=1")

	var calls int32
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&calls, 1)
		return types.FetchResult{Data: "payload"}, nil
	}

	sub1, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub1.Unsubscribe()
	waitForStatus(t, c, key, types.StatusSuccess)

	sub2, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub2.Unsubscribe()

	if got := sub2.Current().Status; got != types.StatusSuccess {
		t.Errorf("status = %q, want immediate %q", got, types.StatusSuccess)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher ran %d times, want 1", got)
	}
}

func TestInvalidateDuringFlightCoalesces(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("posts|page=1")

	var calls int32
	gate := make(chan struct{})
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-gate
		}
		return types.FetchResult{Data: "payload"}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	for i := 0; i < 3; i++ {
		if err := c.Invalidate(key); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
	}

	close(gate)
	waitForCalls(t, &calls, 2)
	waitForStatus(t, c, key, types.StatusSuccess)

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetcher ran %d times, want exactly 2", got)
	}
}

func TestInvalidateWithSubscribersRefetches(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("post|id=7")

	var calls int32
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&calls, 1)
		return types.FetchResult{Data: "payload", Tags: []types.Tag{types.PostTag(7)}}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	waitForCalls(t, &calls, 1)
	waitForStatus(t, c, key, types.StatusSuccess)

	if err := c.Invalidate(key); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	waitForCalls(t, &calls, 2)
	waitForStatus(t, c, key, types.StatusSuccess)
}

func TestInvalidateUnobservedDefersRefetch(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("post|id=7")

	var calls int32
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&calls, 1)
		return types.FetchResult{Data: "payload"}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitForStatus(t, c, key, types.StatusSuccess)
	sub.Unsubscribe()

	if err := c.Invalidate(key); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("unobserved invalidation fetched eagerly, calls = %d", got)
	}

	sub2, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub2.Unsubscribe()

	waitForCalls(t, &calls, 2)
}

func TestFailedFetchDiscardsData(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("posts|page=1")

	var fail atomic.Bool
	fetchErr := errors.New("upstream down")
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		if fail.Load() {
			return types.FetchResult{}, fetchErr
		}
		return types.FetchResult{Data: "payload"}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	waitForStatus(t, c, key, types.StatusSuccess)

	fail.Store(true)
	if err := c.Invalidate(key); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	view := waitForStatus(t, c, key, types.StatusError)

	if view.Data != nil {
		t.Errorf("failed entry retained data: %v", view.Data)
	}
	if !errors.Is(view.Err, fetchErr) {
		t.Errorf("entry error = %v, want %v", view.Err, fetchErr)
	}

	fail.Store(false)
	if err := c.Invalidate(key); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	view = waitForStatus(t, c, key, types.StatusSuccess)
	if view.Data != "payload" {
		t.Errorf("recovered data = %v, want %q", view.Data, "payload")
	}
}

func TestSweepEvictsAfterGrace(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("post|id=3")
	tag := types.PostTag(3)

	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		return types.FetchResult{Data: "payload", Tags: []types.Tag{tag}}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitForStatus(t, c, key, types.StatusSuccess)
	sub.Unsubscribe()

	if evicted := c.Sweep(time.Now()); evicted != 0 {
		t.Fatalf("entry evicted before grace expired, evicted = %d", evicted)
	}
	if _, ok := c.GetEntry(key); !ok {
		t.Fatal("entry vanished inside grace period")
	}

	if evicted := c.Sweep(time.Now().Add(2 * time.Minute)); evicted != 1 {
		t.Fatalf("Sweep evicted %d entries, want 1", evicted)
	}
	if _, ok := c.GetEntry(key); ok {
		t.Error("entry survived eviction")
	}
	if keys := c.KeysByTags([]types.Tag{tag}); len(keys) != 0 {
		t.Errorf("tag index kept evicted key: %v", keys)
	}
}

func TestResubscribeCancelsEviction(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("post|id=3")

	var calls int32
	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&calls, 1)
		return types.FetchResult{Data: "payload"}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitForStatus(t, c, key, types.StatusSuccess)
	sub.Unsubscribe()

	sub2, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub2.Unsubscribe()

	if evicted := c.Sweep(time.Now().Add(time.Hour)); evicted != 0 {
		t.Fatalf("re-subscribed entry evicted, evicted = %d", evicted)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fresh entry refetched on resubscribe, calls = %d", got)
	}
}

func TestPatchAndRestore(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("post|id=1")

	fetcher := func(ctx context.Context) (types.FetchResult, error) {
		return types.FetchResult{Data: &types.Post{ID: 1, LikeCount: 3}}, nil
	}

	sub, err := c.Subscribe(key, fetcher, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	waitForStatus(t, c, key, types.StatusSuccess)

	snapshot, ok := c.Patch(key, func(data interface{}) interface{} {
		clone := *data.(*types.Post)
		clone.LikeCount++
		clone.IsLiked = true
		return &clone
	})
	if !ok {
		t.Fatal("Patch refused a settled entry")
	}

	view, _ := c.GetEntry(key)
	if got := view.Data.(*types.Post); got.LikeCount != 4 || !got.IsLiked {
		t.Errorf("patched post = %+v, want like_count 4 liked", got)
	}

	if !c.Restore(key, snapshot) {
		t.Fatal("Restore failed")
	}
	view, _ = c.GetEntry(key)
	if got := view.Data.(*types.Post); got.LikeCount != 3 || got.IsLiked {
		t.Errorf("restored post = %+v, want like_count 3 not liked", got)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newTestCache(t)

	if _, err := c.Subscribe("", func(ctx context.Context) (types.FetchResult, error) {
		return types.FetchResult{}, nil
	}, 0); !errors.Is(err, types.ErrCacheKeyEmpty) {
		t.Errorf("empty key error = %v, want %v", err, types.ErrCacheKeyEmpty)
	}

	if _, err := c.Subscribe("k", nil, 0); !errors.Is(err, types.ErrFetcherIsNil) {
		t.Errorf("nil fetcher error = %v, want %v", err, types.ErrFetcherIsNil)
	}
}

func TestStopClosesSubscriptions(t *testing.T) {
	c := newTestCache(t)
	key := types.CacheKey("posts|page=1")

	sub, err := c.Subscribe(key, func(ctx context.Context) (types.FetchResult, error) {
		return types.FetchResult{Data: "payload"}, nil
	}, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitForStatus(t, c, key, types.StatusSuccess)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-sub.Updates():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("updates channel not closed on Stop")
		}
	}
}
