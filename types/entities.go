package types

import "time"

// Entity payloads mirror the remote API. The cache treats them as opaque;
// only the feed bindings and optimistic patches read their fields.

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserProfile struct {
	User
	PostCount int `json:"post_count"`
}

type Post struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	IsRetweet    bool      `json:"is_retweet"`
	Author       User      `json:"author"`
	LikeCount    int       `json:"like_count"`
	RetweetCount int       `json:"retweet_count"`
	CommentCount int       `json:"comment_count"`
	IsLiked      bool      `json:"is_liked_by_current_user"`
	IsRetweeted  bool      `json:"is_retweeted_by_current_user"`
}

type PostDetail struct {
	Post
	OriginalPost *Post     `json:"original_post,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Comment struct {
	ID              int64     `json:"id"`
	Content         string    `json:"content"`
	PostID          int64     `json:"post_id"`
	ParentCommentID *int64    `json:"parent_comment_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Author          User      `json:"author"`
	ReplyCount      int       `json:"reply_count"`
}

type CommentDetail struct {
	Comment
	Replies []Comment `json:"replies"`
}

type PostList struct {
	Items      []Post `json:"items"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

type CommentList struct {
	Items      []Comment `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// Like and Retweet listings come back as bare arrays, not the pagination
// envelope the post and comment lists use.

type Like struct {
	ID        int64     `json:"id"`
	User      User      `json:"user"`
	PostID    int64     `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Retweet struct {
	ID             int64     `json:"id"`
	User           User      `json:"user"`
	OriginalPostID int64     `json:"original_post_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type AuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Registration struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=100"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
	Bio         string `json:"bio,omitempty" validate:"max=500"`
}

type Message struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
