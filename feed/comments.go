package feed

import (
	"context"
	"fmt"

	"github.com/saiset-co/sai-feed/cache"
	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

// PostComments subscribes to one page of a post's top-level comments.
func (c *Client) PostComments(postID int64, page, pageSize int) (types.Subscription, error) {
	key := cache.BuildKey("comments",
		cache.Param("post_id", postID),
		cache.Param("page", int64(page)),
		cache.Param("page_size", int64(pageSize)))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/comments/post/%d", postID),
		Query:  pageQuery(page, pageSize),
	}, commentListTags(types.CommentListTag(postID)))

	return c.subscribe(key, fetcher)
}

// Comment subscribes to a single comment together with its direct replies.
func (c *Client) Comment(id int64) (types.Subscription, error) {
	key := cache.BuildKey("comment", cache.Param("id", id))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   commentPath(id),
	}, func(detail *types.CommentDetail) []types.Tag {
		return []types.Tag{
			types.CommentTag(detail.ID),
			types.CommentListTag(detail.PostID),
		}
	})

	return c.subscribe(key, fetcher)
}

// CommentReplies subscribes to one page of replies under a comment.
func (c *Client) CommentReplies(commentID int64, page, pageSize int) (types.Subscription, error) {
	key := cache.BuildKey("comment_replies",
		cache.Param("comment_id", commentID),
		cache.Param("page", int64(page)),
		cache.Param("page_size", int64(pageSize)))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   commentPath(commentID) + "/replies",
		Query:  pageQuery(page, pageSize),
	}, commentListTags(types.CommentTag(commentID)))

	return c.subscribe(key, fetcher)
}

// CreateComment posts a comment, or a reply when parentID is non-nil. The
// post's queries are invalidated too because its comment counter changed.
func (c *Client) CreateComment(ctx context.Context, postID int64, content string, parentID *int64) (*types.Comment, error) {
	tags := []types.Tag{types.CommentListTag(postID), types.PostTag(postID)}
	if parentID != nil {
		tags = append(tags, types.CommentTag(*parentID))
	}

	body := map[string]interface{}{
		"post_id": postID,
		"content": content,
	}
	if parentID != nil {
		body["parent_comment_id"] = *parentID
	}

	result, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			respBody, err := c.executor.Do(ctx, types.Request{
				Method: "POST",
				Path:   "/comments",
				Body:   body,
			}, nil)
			if err != nil {
				return nil, err
			}

			var comment types.Comment
			if err := utils.Unmarshal(respBody, &comment); err != nil {
				return nil, types.WrapError(err, "failed to decode created comment")
			}
			return &comment, nil
		},
		Tags: tags,
	})
	if err != nil {
		return nil, err
	}

	return result.(*types.Comment), nil
}

// UpdateComment edits a comment's content. The caller passes the owning post
// so its comment list pages can be invalidated without an extra lookup.
func (c *Client) UpdateComment(ctx context.Context, postID, id int64, content string) (*types.Comment, error) {
	result, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			respBody, err := c.executor.Do(ctx, types.Request{
				Method: "PATCH",
				Path:   commentPath(id),
				Body:   map[string]string{"content": content},
			}, nil)
			if err != nil {
				return nil, err
			}

			var comment types.Comment
			if err := utils.Unmarshal(respBody, &comment); err != nil {
				return nil, types.WrapError(err, "failed to decode updated comment")
			}
			return &comment, nil
		},
		Tags: []types.Tag{types.CommentTag(id), types.CommentListTag(postID)},
	})
	if err != nil {
		return nil, err
	}

	return result.(*types.Comment), nil
}

func (c *Client) DeleteComment(ctx context.Context, postID, id int64) error {
	_, err := c.mutations.Mutate(ctx, types.Mutation{
		Action: func(ctx context.Context) (interface{}, error) {
			return c.executor.Do(ctx, types.Request{
				Method: "DELETE",
				Path:   commentPath(id),
			}, nil)
		},
		Tags: []types.Tag{
			types.CommentTag(id),
			types.CommentListTag(postID),
			types.PostTag(postID),
		},
	})
	return err
}

func commentPath(id int64) string {
	return fmt.Sprintf("/comments/%d", id)
}

func commentListTags(listTag types.Tag) func(*types.CommentList) []types.Tag {
	return func(list *types.CommentList) []types.Tag {
		tags := make([]types.Tag, 0, len(list.Items)+1)
		tags = append(tags, listTag)
		for _, comment := range list.Items {
			tags = append(tags, types.CommentTag(comment.ID))
		}
		return tags
	}
}
