package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/types"
)

func TestInvalidateByTagsReachesEveryTaggedQuery(t *testing.T) {
	c := newTestCache(t)
	engine := NewInvalidationEngine(logger.NewNop(), c.tags, c)

	var feedCalls, detailCalls, commentCalls int32

	feedSub, err := c.Subscribe("feed|page=1", func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&feedCalls, 1)
		return types.FetchResult{
			Data: "feed",
			Tags: []types.Tag{types.PostListTag(), types.PostTag(1), types.PostTag(2)},
		}, nil
	}, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer feedSub.Unsubscribe()

	detailSub, err := c.Subscribe("post|id=1", func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&detailCalls, 1)
		return types.FetchResult{Data: "post", Tags: []types.Tag{types.PostTag(1)}}, nil
	}, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer detailSub.Unsubscribe()

	commentSub, err := c.Subscribe("comments|post_id=9", func(ctx context.Context) (types.FetchResult, error) {
		atomic.AddInt32(&commentCalls, 1)
		return types.FetchResult{Data: "comments", Tags: []types.Tag{types.CommentListTag(9)}}, nil
	}, time.Hour)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer commentSub.Unsubscribe()

	waitForCalls(t, &feedCalls, 1)
	waitForCalls(t, &detailCalls, 1)
	waitForCalls(t, &commentCalls, 1)
	waitForStatus(t, c, "feed|page=1", types.StatusSuccess)
	waitForStatus(t, c, "post|id=1", types.StatusSuccess)
	waitForStatus(t, c, "comments|post_id=9", types.StatusSuccess)

	if err := engine.InvalidateByTags([]types.Tag{types.PostTag(1)}); err != nil {
		t.Fatalf("InvalidateByTags failed: %v", err)
	}

	waitForCalls(t, &feedCalls, 2)
	waitForCalls(t, &detailCalls, 2)

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&commentCalls); got != 1 {
		t.Errorf("untagged query refetched, calls = %d", got)
	}
}

func TestInvalidateByTagsUnknownTagIsNoop(t *testing.T) {
	c := newTestCache(t)
	engine := NewInvalidationEngine(logger.NewNop(), c.tags, c)

	if err := engine.InvalidateByTags([]types.Tag{types.PostTag(404)}); err != nil {
		t.Fatalf("InvalidateByTags on unknown tag failed: %v", err)
	}
}
