package feed

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"clipstream/internal/users"
)

// AuthorCache is the bounded read-through cache for author snapshots.
// Entries expire after a staleness window so profile edits become
// visible without explicit invalidation.
type AuthorCache struct {
	lru *expirable.LRU[uuid.UUID, *users.Snapshot]
}

func NewAuthorCache(size int, ttl time.Duration) *AuthorCache {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AuthorCache{lru: expirable.NewLRU[uuid.UUID, *users.Snapshot](size, nil, ttl)}
}

func (c *AuthorCache) Get(userID uuid.UUID) (*users.Snapshot, bool) {
	return c.lru.Get(userID)
}

func (c *AuthorCache) Add(snapshot *users.Snapshot) {
	c.lru.Add(snapshot.UserID, snapshot)
}

// Len reports the number of cached snapshots.
func (c *AuthorCache) Len() int {
	return c.lru.Len()
}
