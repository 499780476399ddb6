package collections

import (
	"time"

	"github.com/google/uuid"
)

// MaxTitleLength bounds collection titles.
const MaxTitleLength = 120

// Collection groups posts under an owner-unique title. item_count is a
// derived aggregate owned by the interaction engine.
type Collection struct {
	CollectionID uuid.UUID  `json:"collection_id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	CoverMediaID *uuid.UUID `json:"cover_media_id,omitempty"`
	ItemCount    int64      `json:"item_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateCollectionRequest is the API payload for explicit creation.
type CreateCollectionRequest struct {
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	CoverMediaID *uuid.UUID `json:"cover_media_id,omitempty"`
}
