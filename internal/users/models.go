package users

import (
	"time"

	"github.com/google/uuid"
)

// User is the profile document. Follower and following counts are
// derived aggregates owned by the interaction engine.
type User struct {
	UserID         uuid.UUID  `json:"user_id"`
	Handle         string     `json:"handle"`
	DisplayName    string     `json:"display_name"`
	Bio            string     `json:"bio"`
	AvatarMediaID  *uuid.UUID `json:"avatar_media_id,omitempty"`
	Verified       bool       `json:"verified"`
	FollowerCount  int64      `json:"follower_count"`
	FollowingCount int64      `json:"following_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Snapshot is the denormalized author identity joined onto feed items.
type Snapshot struct {
	UserID        uuid.UUID  `json:"user_id"`
	Handle        string     `json:"handle"`
	DisplayName   string     `json:"display_name"`
	Verified      bool       `json:"verified"`
	AvatarMediaID *uuid.UUID `json:"avatar_media_id,omitempty"`
}

// CreateUserRequest is the signup payload. The handle is immutable once
// set, so profile updates never carry it.
type CreateUserRequest struct {
	Handle      string `json:"handle" binding:"required"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
}

// UpdateProfileRequest carries optional profile edits.
type UpdateProfileRequest struct {
	DisplayName   *string    `json:"display_name,omitempty"`
	Bio           *string    `json:"bio,omitempty"`
	AvatarMediaID *uuid.UUID `json:"avatar_media_id,omitempty"`
}
