package feed

import (
	"context"

	"github.com/saiset-co/sai-feed/cache"
	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

// Profile subscribes to a user's public profile.
func (c *Client) Profile(username string) (types.Subscription, error) {
	key := cache.BuildKey("user_profile", cache.ParamStr("username", username))

	fetcher := fetchJSON(c, types.Request{
		Method: "GET",
		Path:   "/users/" + username,
	}, func(profile *types.UserProfile) []types.Tag {
		return []types.Tag{types.UserProfileTag(profile.Username)}
	})

	return c.subscribe(key, fetcher)
}

// Register creates a new account. The caller still logs in afterwards; the
// server does not hand out a token on registration.
func (c *Client) Register(ctx context.Context, registration types.Registration) (*types.User, error) {
	body, err := c.executor.Do(ctx, types.Request{
		Method: "POST",
		Path:   "/auth/register",
		Body:   registration,
	}, nil)
	if err != nil {
		return nil, err
	}

	var user types.User
	if err := utils.Unmarshal(body, &user); err != nil {
		return nil, types.WrapError(err, "failed to decode registered user")
	}
	return &user, nil
}
