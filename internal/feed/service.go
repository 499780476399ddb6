// Package feed composes paginated post listings joined with
// denormalized author snapshots.
package feed

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/collections"
	"clipstream/internal/posts"
	"clipstream/internal/users"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PostPager is the slice of the posts repository the feed reads.
type PostPager interface {
	PageAll(ctx context.Context, q posts.PageQuery) ([]posts.Post, error)
	PageByOwner(ctx context.Context, ownerID uuid.UUID, q posts.PageQuery) ([]posts.Post, error)
	PageByCollection(ctx context.Context, collectionID uuid.UUID, q posts.PageQuery) ([]posts.Post, error)
}

// AuthorSource resolves author snapshots on cache misses.
type AuthorSource interface {
	GetSnapshot(ctx context.Context, userID uuid.UUID) (*users.Snapshot, error)
}

// CollectionLister is the slice of the collections repository the feed
// reads.
type CollectionLister interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]collections.Collection, error)
}

// Item is one feed entry: a post with its author joined in.
type Item struct {
	posts.Post
	Author *users.Snapshot `json:"author,omitempty"`
}

// Page is one window of a traversal. An empty NextCursor means the
// traversal is complete.
type Page struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Service serves post listings with keyset pagination. Forward
// traversal without intervening deletes visits every pre-existing post
// exactly once; newly created posts may or may not appear mid-flight.
type Service struct {
	posts       PostPager
	authors     AuthorSource
	collections CollectionLister
	cache       *AuthorCache
	logger      *slog.Logger
}

func NewService(postPager PostPager, authors AuthorSource, lister CollectionLister, cache *AuthorCache, logger *slog.Logger) *Service {
	return &Service{
		posts:       postPager,
		authors:     authors,
		collections: lister,
		cache:       cache,
		logger:      logger,
	}
}

// GetFeed returns the global feed window after the given cursor.
func (s *Service) GetFeed(ctx context.Context, cursorStr string, pageSize int) (*Page, error) {
	q, err := s.pageQuery(cursorStr, pageSize)
	if err != nil {
		return nil, err
	}

	rows, err := s.posts.PageAll(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.buildPage(ctx, rows, q.Limit)
}

// GetUserPosts returns one user's posts, newest first.
func (s *Service) GetUserPosts(ctx context.Context, userID uuid.UUID, cursorStr string, pageSize int) (*Page, error) {
	q, err := s.pageQuery(cursorStr, pageSize)
	if err != nil {
		return nil, err
	}

	rows, err := s.posts.PageByOwner(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return s.buildPage(ctx, rows, q.Limit)
}

// GetCollectionPosts returns a collection's posts, newest first.
func (s *Service) GetCollectionPosts(ctx context.Context, collectionID uuid.UUID, cursorStr string, pageSize int) (*Page, error) {
	q, err := s.pageQuery(cursorStr, pageSize)
	if err != nil {
		return nil, err
	}

	rows, err := s.posts.PageByCollection(ctx, collectionID, q)
	if err != nil {
		return nil, err
	}
	return s.buildPage(ctx, rows, q.Limit)
}

// GetUserCollections returns all collections owned by the user. Order
// is stable within one call.
func (s *Service) GetUserCollections(ctx context.Context, userID uuid.UUID) ([]collections.Collection, error) {
	return s.collections.ListByOwner(ctx, userID)
}

// pageQuery clamps the page size and decodes the cursor. The limit is
// one larger than the page so the presence of a next page is known
// without a count query.
func (s *Service) pageQuery(cursorStr string, pageSize int) (posts.PageQuery, error) {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := posts.PageQuery{Limit: pageSize + 1}
	if cursorStr != "" {
		c, err := decodeCursor(cursorStr)
		if err != nil {
			return q, err
		}
		q.BeforeCreatedAt = c.CreatedAt
		q.BeforeID = c.PostID
	}
	return q, nil
}

func (s *Service) buildPage(ctx context.Context, rows []posts.Post, limit int) (*Page, error) {
	pageSize := limit - 1
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}

	page := &Page{Items: make([]Item, 0, len(rows))}
	for i := range rows {
		page.Items = append(page.Items, Item{
			Post:   rows[i],
			Author: s.author(ctx, rows[i].OwnerID),
		})
	}

	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.PostID)
	}
	return page, nil
}

// author resolves a snapshot through the bounded cache. A missing
// author (deleted account) yields nil rather than failing the page.
func (s *Service) author(ctx context.Context, userID uuid.UUID) *users.Snapshot {
	if snap, ok := s.cache.Get(userID); ok {
		return snap
	}

	snap, err := s.authors.GetSnapshot(ctx, userID)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			s.logger.Warn("author snapshot lookup failed", "user_id", userID, "error", err)
		}
		return nil
	}

	s.cache.Add(snap)
	return snap
}
