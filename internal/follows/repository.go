// Package follows stores follow edges between users. Follower and
// following counts on the user rows are cached aggregates reconciled
// against these edges.
package follows

import (
	"context"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// Insert creates the edge if absent. Returns false when the follower
// already follows the followee.
func (r *Repository) Insert(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	const query = `
		INSERT INTO follows (follower_id, followee_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to insert follow", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the edge. Returns false when no edge existed.
func (r *Repository) Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	const query = `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`

	tag, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to delete follow", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFollowerIDs returns who follows the given user.
func (r *Repository) ListFollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const query = `SELECT follower_id FROM follows WHERE followee_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to query followers", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to scan follower", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate followers", err)
	}
	return ids, nil
}
