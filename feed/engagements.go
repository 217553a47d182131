package feed

import (
	"context"

	"github.com/saiset-co/sai-feed/types"
)

// LikePost likes a post. Every cached view of the post is patched up front.
// A confirmed request invalidates the post's queries so the server counters
// win; a rejected one restores each view from its pre-patch snapshot.
func (c *Client) LikePost(ctx context.Context, id int64) error {
	return c.engage(ctx, id, "POST", postPath(id)+"/like", func(p *types.Post) {
		if p.IsLiked {
			return
		}
		p.IsLiked = true
		p.LikeCount++
	})
}

func (c *Client) UnlikePost(ctx context.Context, id int64) error {
	return c.engage(ctx, id, "DELETE", postPath(id)+"/like", func(p *types.Post) {
		if !p.IsLiked {
			return
		}
		p.IsLiked = false
		p.LikeCount--
	})
}

// Repost shares a post onto the caller's own timeline. Besides the counter
// patch this also invalidates the lists the new repost appears in.
func (c *Client) Repost(ctx context.Context, id int64) error {
	tags := []types.Tag{types.PostTag(id), types.PostListTag()}
	if current := c.session.Current(); current.User != nil {
		tags = append(tags, types.UserPostListTag(current.User.Username))
	}

	patch := patchPost(id, func(p *types.Post) {
		if p.IsRetweeted {
			return
		}
		p.IsRetweeted = true
		p.RetweetCount++
	})

	_, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			return c.executor.Do(ctx, types.Request{
				Method: "POST",
				Path:   postPath(id) + "/retweet",
			}, nil)
		},
		Tags:       tags,
		Optimistic: c.postPatches(id, patch),
	})
	return err
}

func (c *Client) UndoRepost(ctx context.Context, id int64) error {
	tags := []types.Tag{types.PostTag(id), types.PostListTag()}
	if current := c.session.Current(); current.User != nil {
		tags = append(tags, types.UserPostListTag(current.User.Username))
	}

	patch := patchPost(id, func(p *types.Post) {
		if !p.IsRetweeted {
			return
		}
		p.IsRetweeted = false
		p.RetweetCount--
	})

	_, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			return c.executor.Do(ctx, types.Request{
				Method: "DELETE",
				Path:   postPath(id) + "/retweet",
			}, nil)
		},
		Tags:       tags,
		Optimistic: c.postPatches(id, patch),
	})
	return err
}

func (c *Client) engage(ctx context.Context, id int64, method, path string, apply func(*types.Post)) error {
	_, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			return c.executor.Do(ctx, types.Request{
				Method: method,
				Path:   path,
			}, nil)
		},
		Tags:       []types.Tag{types.PostTag(id)},
		Optimistic: c.postPatches(id, patchPost(id, apply)),
	})
	return err
}

// postPatches fans one patch out to every cache entry currently tagged with
// the post. The lookup happens at call time, so only entries that exist get
// patched and snapshotted.
func (c *Client) postPatches(id int64, patch types.Patch) []types.OptimisticPatch {
	keys := c.cache.KeysByTags([]types.Tag{types.PostTag(id)})

	patches := make([]types.OptimisticPatch, 0, len(keys))
	for _, key := range keys {
		patches = append(patches, types.OptimisticPatch{Key: key, Patch: patch})
	}
	return patches
}

// patchPost lifts a single-post transform onto whatever shape the cache holds
// for a tagged entry. Unknown shapes pass through untouched; known shapes are
// cloned so the pre-patch snapshot stays intact for a revert.
func patchPost(id int64, apply func(*types.Post)) types.Patch {
	return func(data interface{}) interface{} {
		switch v := data.(type) {
		case *types.PostDetail:
			if v.ID != id {
				return data
			}
			clone := *v
			apply(&clone.Post)
			return &clone
		case *types.PostList:
			clone := *v
			clone.Items = make([]types.Post, len(v.Items))
			copy(clone.Items, v.Items)
			for i := range clone.Items {
				if clone.Items[i].ID == id {
					apply(&clone.Items[i])
				}
			}
			return &clone
		default:
			return data
		}
	}
}
