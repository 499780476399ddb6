package posts

import (
	"time"

	"github.com/google/uuid"
)

// Post is a published clip. The owner is immutable; like_count and
// comment_count are derived aggregates owned by the interaction engine.
type Post struct {
	PostID           uuid.UUID  `json:"post_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	MediaID          uuid.UUID  `json:"media_id"`
	ThumbnailMediaID *uuid.UUID `json:"thumbnail_media_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	CollectionID     *uuid.UUID `json:"collection_id,omitempty"`
	LikeCount        int64      `json:"like_count"`
	CommentCount     int64      `json:"comment_count"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PageQuery is a keyset pagination window over (created_at, post_id)
// descending. A zero Before means "from the newest post".
type PageQuery struct {
	BeforeCreatedAt time.Time
	BeforeID        uuid.UUID
	Limit           int
}

// HasCursor reports whether the query continues an earlier traversal.
func (q PageQuery) HasCursor() bool {
	return !q.BeforeCreatedAt.IsZero()
}
