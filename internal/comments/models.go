package comments

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength bounds comment text. Matches the client-side limit.
const MaxBodyLength = 2200

// Comment belongs to a post. Its like_count is a derived aggregate
// owned by the interaction engine.
type Comment struct {
	CommentID uuid.UUID `json:"comment_id"`
	PostID    uuid.UUID `json:"post_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCommentRequest is the API payload for adding a comment.
type CreateCommentRequest struct {
	Body string `json:"body"`
}
