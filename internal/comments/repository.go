package comments

import (
	"context"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

// Repository handles all database operations for comments.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, c *Comment) (*Comment, error) {
	const query = `
		INSERT INTO comments (comment_id, post_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING comment_id, post_id, author_id, body, like_count, created_at
	`

	out := &Comment{}
	err := r.db.QueryRow(ctx, query, c.CommentID, c.PostID, c.AuthorID, c.Body).Scan(
		&out.CommentID, &out.PostID, &out.AuthorID, &out.Body, &out.LikeCount, &out.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to create comment", err)
	}
	return out, nil
}

func (r *Repository) GetByID(ctx context.Context, commentID uuid.UUID) (*Comment, error) {
	const query = `
		SELECT comment_id, post_id, author_id, body, like_count, created_at
		FROM comments WHERE comment_id = $1
	`

	c := &Comment{}
	err := r.db.QueryRow(ctx, query, commentID).Scan(
		&c.CommentID, &c.PostID, &c.AuthorID, &c.Body, &c.LikeCount, &c.CreatedAt,
	)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "comment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get comment", err)
	}
	return c, nil
}

// Delete removes the comment row. Authorship is enforced by the engine.
func (r *Repository) Delete(ctx context.Context, commentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE comment_id = $1`, commentID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete comment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "comment not found")
	}
	return nil
}

func (r *Repository) ListByPost(ctx context.Context, postID uuid.UUID) ([]Comment, error) {
	const query = `
		SELECT comment_id, post_id, author_id, body, like_count, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, postID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to query comments", err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(
			&c.CommentID, &c.PostID, &c.AuthorID, &c.Body, &c.LikeCount, &c.CreatedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to scan comment", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate comments", err)
	}
	return out, nil
}

// AdjustLikeCount moves the comment like aggregate by delta, floored at
// zero. Only the interaction engine calls this.
func (r *Repository) AdjustLikeCount(ctx context.Context, commentID uuid.UUID, delta int64) error {
	const query = `UPDATE comments SET like_count = GREATEST(like_count + $2, 0) WHERE comment_id = $1`

	tag, err := r.db.Exec(ctx, query, commentID, delta)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to adjust comment counter", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "comment not found")
	}
	return nil
}
