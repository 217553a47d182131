package types

import "fmt"

// ListID marks a tag that represents every collection view of an entity type,
// as opposed to one concrete entity. Creating an entity invalidates the LIST
// tag of its type so paginated queries refetch without knowing which list
// queries exist.
const ListID = "LIST"

// Tag relates a cached result to the server data it represents. Tags are
// used only for invalidation lookup; they never own anything.
type Tag struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (t Tag) String() string {
	if t.EntityID == "" {
		return t.EntityType
	}
	return t.EntityType + ":" + t.EntityID
}

func (t Tag) IsList() bool {
	return t.EntityID == ListID || len(t.EntityID) > len(ListID) && t.EntityID[:len(ListID)+1] == ListID+"_"
}

const (
	EntityPost    = "Post"
	EntityComment = "Comment"
	EntityUser    = "User"
)

func PostTag(id int64) Tag {
	return Tag{EntityType: EntityPost, EntityID: fmt.Sprintf("%d", id)}
}

func PostListTag() Tag {
	return Tag{EntityType: EntityPost, EntityID: ListID}
}

func UserPostListTag(username string) Tag {
	return Tag{EntityType: EntityPost, EntityID: ListID + "_user_" + username}
}

func CommentTag(id int64) Tag {
	return Tag{EntityType: EntityComment, EntityID: fmt.Sprintf("%d", id)}
}

func CommentListTag(postID int64) Tag {
	return Tag{EntityType: EntityComment, EntityID: fmt.Sprintf("%s_%d", ListID, postID)}
}

// CurrentUserTag is the singular User tag: it covers the "who am I" query and
// anything else derived from the authenticated user.
func CurrentUserTag() Tag {
	return Tag{EntityType: EntityUser}
}

func UserProfileTag(username string) Tag {
	return Tag{EntityType: EntityUser, EntityID: username}
}
