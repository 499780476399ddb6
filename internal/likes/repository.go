package likes

import (
	"context"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

// Repository handles all database operations for like edges.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// Insert creates the edge if it does not exist. Returns false when the
// (user, target) pair was already liked.
func (r *Repository) Insert(ctx context.Context, kind TargetKind, targetID, userID uuid.UUID) (bool, error) {
	const query = `
		INSERT INTO likes (like_id, target_kind, target_id, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, target_kind, target_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, uuid.New(), kind, targetID, userID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to insert like", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the edge. Returns false when no edge existed.
func (r *Repository) Delete(ctx context.Context, kind TargetKind, targetID, userID uuid.UUID) (bool, error) {
	const query = `DELETE FROM likes WHERE user_id = $1 AND target_kind = $2 AND target_id = $3`

	tag, err := r.db.Exec(ctx, query, userID, kind, targetID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to delete like", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether the user has liked the target.
func (r *Repository) Exists(ctx context.Context, kind TargetKind, targetID, userID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM likes
			WHERE user_id = $1 AND target_kind = $2 AND target_id = $3
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, kind, targetID).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to check like", err)
	}
	return exists, nil
}

// CountFor returns the true edge count for a target. Used by
// reconciliation; reads normally go through the cached counter.
func (r *Repository) CountFor(ctx context.Context, kind TargetKind, targetID uuid.UUID) (int64, error) {
	const query = `SELECT COUNT(*) FROM likes WHERE target_kind = $1 AND target_id = $2`

	var count int64
	if err := r.db.QueryRow(ctx, query, kind, targetID).Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, "failed to count likes", err)
	}
	return count, nil
}

// DeleteAllForTarget removes every edge on a target, e.g. when its
// post is deleted.
func (r *Repository) DeleteAllForTarget(ctx context.Context, kind TargetKind, targetID uuid.UUID) error {
	const query = `DELETE FROM likes WHERE target_kind = $1 AND target_id = $2`

	if _, err := r.db.Exec(ctx, query, kind, targetID); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete target likes", err)
	}
	return nil
}

// DeleteAllForPostComments removes comment-like edges for every
// comment under a post, ahead of the comments cascading away with it.
func (r *Repository) DeleteAllForPostComments(ctx context.Context, postID uuid.UUID) error {
	const query = `
		DELETE FROM likes
		WHERE target_kind = 'comment'
		  AND target_id IN (SELECT comment_id FROM comments WHERE post_id = $1)
	`

	if _, err := r.db.Exec(ctx, query, postID); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete comment likes", err)
	}
	return nil
}
