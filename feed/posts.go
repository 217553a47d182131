package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/saiset-co/sai-feed/cache"
	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

// Feed subscribes to one page of the global timeline. The result carries the
// list tag plus one tag per post, so both list-level and post-level changes
// reach it.
func (c *Client) Feed(page, pageSize int) (types.Subscription, error) {
	key := cache.BuildKey("posts",
		cache.Param("page", int64(page)),
		cache.Param("page_size", int64(pageSize)))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   "/posts",
		Query:  pageQuery(page, pageSize),
	}, postListTags(types.PostListTag()))

	return c.subscribe(key, fetcher)
}

// UserPosts subscribes to one page of a single user's timeline.
func (c *Client) UserPosts(username string, page, pageSize int) (types.Subscription, error) {
	key := cache.BuildKey("posts_user",
		cache.ParamStr("username", username),
		cache.Param("page", int64(page)),
		cache.Param("page_size", int64(pageSize)))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   "/posts/user/" + username,
		Query:  pageQuery(page, pageSize),
	}, postListTags(types.UserPostListTag(username)))

	return c.subscribe(key, fetcher)
}

// Post subscribes to a single post with its engagement counters.
func (c *Client) Post(id int64) (types.Subscription, error) {
	key := cache.BuildKey("post", cache.Param("id", id))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   postPath(id),
	}, func(detail *types.PostDetail) []types.Tag {
		tags := []types.Tag{types.PostTag(detail.ID)}
		if detail.OriginalPost != nil {
			tags = append(tags, types.PostTag(detail.OriginalPost.ID))
		}
		return tags
	})

	return c.subscribe(key, fetcher)
}

// CreatePost publishes a new post and invalidates every list the post can
// appear in. There is no optimistic insert: list pages come back from the
// server in their canonical order.
func (c *Client) CreatePost(ctx context.Context, content string) (*types.PostDetail, error) {
	tags := []types.Tag{types.PostListTag()}
	if current := c.session.Current(); current.User != nil {
		tags = append(tags, types.UserPostListTag(current.User.Username))
	}

	result, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			body, err := c.executor.Do(ctx, types.Request{
				Method: "POST",
				Path:   "/posts",
				Body:   map[string]string{"content": content},
			}, nil)
			if err != nil {
				return nil, err
			}

			var detail types.PostDetail
			if err := utils.Unmarshal(body, &detail); err != nil {
				return nil, types.WrapError(err, "failed to decode created post")
			}
			return &detail, nil
		},
		Tags: tags,
	})
	if err != nil {
		return nil, err
	}

	return result.(*types.PostDetail), nil
}

func (c *Client) DeletePost(ctx context.Context, id int64) error {
	tags := []types.Tag{types.PostTag(id), types.PostListTag()}
	if current := c.session.Current(); current.User != nil {
		tags = append(tags, types.UserPostListTag(current.User.Username))
	}

	_, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			return c.executor.Do(ctx, types.Request{
				Method: "DELETE",
				Path:   postPath(id),
			}, nil)
		},
		Tags: tags,
	})
	return err
}

// PostLikers subscribes to the full list of likes on a post. The server
// returns a bare array, not a paginated envelope.
func (c *Client) PostLikers(id int64) (types.Subscription, error) {
	key := cache.BuildKey("post_likers", cache.Param("id", id))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   postPath(id) + "/likes",
	}, func(*[]types.Like) []types.Tag {
		return []types.Tag{types.PostTag(id)}
	})

	return c.subscribe(key, fetcher)
}

// PostReposters subscribes to the full list of retweets of a post. Same bare
// array shape as PostLikers.
func (c *Client) PostReposters(id int64) (types.Subscription, error) {
	key := cache.BuildKey("post_reposters", cache.Param("id", id))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   postPath(id) + "/retweets",
	}, func(*[]types.Retweet) []types.Tag {
		return []types.Tag{types.PostTag(id)}
	})

	return c.subscribe(key, fetcher)
}

func postPath(id int64) string {
	return fmt.Sprintf("/posts/%d", id)
}

func pageQuery(page, pageSize int) map[string]string {
	return map[string]string{
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
}

// postListTags tags a list page with its list tag plus one tag per item, so
// a single-post change invalidates every page the post is visible on.
func postListTags(listTag types.Tag) func(*types.PostList) []types.Tag {
	return func(list *types.PostList) []types.Tag {
		tags := make([]types.Tag, 0, len(list.Items)+1)
		tags = append(tags, listTag)
		for _, post := range list.Items {
			tags = append(tags, types.PostTag(post.ID))
		}
		return tags
	}
}
