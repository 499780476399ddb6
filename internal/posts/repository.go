package posts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

const postColumns = `post_id, owner_id, media_id, thumbnail_media_id, title, description,
	collection_id, like_count, comment_count, created_at`

// Repository handles all database operations for posts.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// Create inserts a post and returns it with the database timestamp.
func (r *Repository) Create(ctx context.Context, p *Post) (*Post, error) {
	query := fmt.Sprintf(`
		INSERT INTO posts (post_id, owner_id, media_id, thumbnail_media_id, title, description, collection_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, postColumns)

	out := &Post{}
	err := r.db.QueryRow(ctx, query,
		p.PostID, p.OwnerID, p.MediaID, p.ThumbnailMediaID, p.Title, p.Description, p.CollectionID,
	).Scan(
		&out.PostID, &out.OwnerID, &out.MediaID, &out.ThumbnailMediaID, &out.Title,
		&out.Description, &out.CollectionID, &out.LikeCount, &out.CommentCount, &out.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to create post", err)
	}
	return out, nil
}

func (r *Repository) GetByID(ctx context.Context, postID uuid.UUID) (*Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE post_id = $1`, postColumns)

	p := &Post{}
	err := r.db.QueryRow(ctx, query, postID).Scan(
		&p.PostID, &p.OwnerID, &p.MediaID, &p.ThumbnailMediaID, &p.Title,
		&p.Description, &p.CollectionID, &p.LikeCount, &p.CommentCount, &p.CreatedAt,
	)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "post not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get post", err)
	}
	return p, nil
}

// Delete removes the post row. Ownership is enforced by the engine;
// likes and comments cascade in the schema.
func (r *Repository) Delete(ctx context.Context, postID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE post_id = $1`, postID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	return nil
}

// SetCollection moves the post's collection reference. A nil id clears it.
func (r *Repository) SetCollection(ctx context.Context, postID uuid.UUID, collectionID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE posts SET collection_id = $2 WHERE post_id = $1`, postID, collectionID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to move post collection", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	return nil
}

// AdjustLikeCount moves the like aggregate by delta, floored at zero.
// Only the interaction engine calls this.
func (r *Repository) AdjustLikeCount(ctx context.Context, postID uuid.UUID, delta int64) error {
	const query = `UPDATE posts SET like_count = GREATEST(like_count + $2, 0) WHERE post_id = $1`
	return r.adjust(ctx, query, postID, delta)
}

// AdjustCommentCount moves the comment aggregate by delta, floored at zero.
func (r *Repository) AdjustCommentCount(ctx context.Context, postID uuid.UUID, delta int64) error {
	const query = `UPDATE posts SET comment_count = GREATEST(comment_count + $2, 0) WHERE post_id = $1`
	return r.adjust(ctx, query, postID, delta)
}

func (r *Repository) adjust(ctx context.Context, query string, postID uuid.UUID, delta int64) error {
	tag, err := r.db.Exec(ctx, query, postID, delta)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to adjust post counter", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	return nil
}

// PageAll returns the global feed window, newest first.
func (r *Repository) PageAll(ctx context.Context, q PageQuery) ([]Post, error) {
	if q.HasCursor() {
		query := fmt.Sprintf(`
			SELECT %s FROM posts
			WHERE (created_at, post_id) < ($1, $2)
			ORDER BY created_at DESC, post_id DESC
			LIMIT $3
		`, postColumns)
		return r.queryRows(ctx, query, q.BeforeCreatedAt, q.BeforeID, q.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM posts
		ORDER BY created_at DESC, post_id DESC
		LIMIT $1
	`, postColumns)
	return r.queryRows(ctx, query, q.Limit)
}

// PageByOwner returns one user's posts, newest first.
func (r *Repository) PageByOwner(ctx context.Context, ownerID uuid.UUID, q PageQuery) ([]Post, error) {
	if q.HasCursor() {
		query := fmt.Sprintf(`
			SELECT %s FROM posts
			WHERE owner_id = $1 AND (created_at, post_id) < ($2, $3)
			ORDER BY created_at DESC, post_id DESC
			LIMIT $4
		`, postColumns)
		return r.queryRows(ctx, query, ownerID, q.BeforeCreatedAt, q.BeforeID, q.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM posts
		WHERE owner_id = $1
		ORDER BY created_at DESC, post_id DESC
		LIMIT $2
	`, postColumns)
	return r.queryRows(ctx, query, ownerID, q.Limit)
}

// PageByCollection returns a collection's posts, newest first.
func (r *Repository) PageByCollection(ctx context.Context, collectionID uuid.UUID, q PageQuery) ([]Post, error) {
	if q.HasCursor() {
		query := fmt.Sprintf(`
			SELECT %s FROM posts
			WHERE collection_id = $1 AND (created_at, post_id) < ($2, $3)
			ORDER BY created_at DESC, post_id DESC
			LIMIT $4
		`, postColumns)
		return r.queryRows(ctx, query, collectionID, q.BeforeCreatedAt, q.BeforeID, q.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM posts
		WHERE collection_id = $1
		ORDER BY created_at DESC, post_id DESC
		LIMIT $2
	`, postColumns)
	return r.queryRows(ctx, query, collectionID, q.Limit)
}

func (r *Repository) queryRows(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to query posts", err)
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(
			&p.PostID, &p.OwnerID, &p.MediaID, &p.ThumbnailMediaID, &p.Title,
			&p.Description, &p.CollectionID, &p.LikeCount, &p.CommentCount, &p.CreatedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to scan post", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate posts", err)
	}
	return out, nil
}
