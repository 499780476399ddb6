package likes

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind distinguishes what a like edge points at.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Valid reports whether the kind is one of the known targets.
func (k TargetKind) Valid() bool {
	return k == TargetPost || k == TargetComment
}

// Like is an edge entity. Its existence is the source of truth for
// "liked by user X"; the counter on the target is a cached aggregate.
type Like struct {
	LikeID     uuid.UUID  `json:"like_id"`
	TargetKind TargetKind `json:"target_kind"`
	TargetID   uuid.UUID  `json:"target_id"`
	UserID     uuid.UUID  `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
}
