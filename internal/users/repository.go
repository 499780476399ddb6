package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

const userColumns = `user_id, handle, display_name, bio, avatar_media_id, verified,
	follower_count, following_count, created_at, updated_at`

// Repository handles all database operations for users.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user under the caller's identity id. Handle
// uniqueness is case-insensitive.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, req CreateUserRequest) (*User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (user_id, handle, display_name, bio)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, userColumns)

	u := &User{}
	err := scanUser(r.db.QueryRow(ctx, query, userID, req.Handle, req.DisplayName, req.Bio), u)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "handle %q is already taken", req.Handle)
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to create user", err)
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE user_id = $1`, userColumns)

	u := &User{}
	err := scanUser(r.db.QueryRow(ctx, query, userID), u)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get user", err)
	}
	return u, nil
}

// GetSnapshot fetches the denormalized author identity for feed joins.
func (r *Repository) GetSnapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	const query = `
		SELECT user_id, handle, display_name, verified, avatar_media_id
		FROM users WHERE user_id = $1
	`

	s := &Snapshot{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.Handle, &s.DisplayName, &s.Verified, &s.AvatarMediaID,
	)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get author snapshot", err)
	}
	return s, nil
}

// UpdateProfile applies the provided fields only. The handle is
// immutable and never part of the update set.
func (r *Repository) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*User, error) {
	sets := []string{}
	args := []any{}
	argPos := 1

	if req.DisplayName != nil {
		sets = append(sets, fmt.Sprintf("display_name = $%d", argPos))
		args = append(args, *req.DisplayName)
		argPos++
	}
	if req.Bio != nil {
		sets = append(sets, fmt.Sprintf("bio = $%d", argPos))
		args = append(args, *req.Bio)
		argPos++
	}
	if req.AvatarMediaID != nil {
		sets = append(sets, fmt.Sprintf("avatar_media_id = $%d", argPos))
		args = append(args, *req.AvatarMediaID)
		argPos++
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, userID)
	}

	query := fmt.Sprintf(`
		UPDATE users SET %s, updated_at = NOW()
		WHERE user_id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), argPos, userColumns)
	args = append(args, userID)

	u := &User{}
	err := scanUser(r.db.QueryRow(ctx, query, args...), u)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to update profile", err)
	}
	return u, nil
}

// ListLikedPostIDs returns the user's liked-post set. Like edges are the
// source of truth, so this reads them directly.
func (r *Repository) ListLikedPostIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const query = `
		SELECT target_id FROM likes
		WHERE user_id = $1 AND target_kind = 'post'
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list liked posts", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to scan liked post", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate liked posts", err)
	}
	return ids, nil
}

// AdjustFollowerCount moves the follower aggregate by delta, floored at
// zero. Only the interaction engine calls this.
func (r *Repository) AdjustFollowerCount(ctx context.Context, userID uuid.UUID, delta int64) error {
	const query = `
		UPDATE users
		SET follower_count = GREATEST(follower_count + $2, 0), updated_at = NOW()
		WHERE user_id = $1
	`
	return r.adjust(ctx, query, userID, delta)
}

// AdjustFollowingCount moves the following aggregate by delta, floored
// at zero. Only the interaction engine calls this.
func (r *Repository) AdjustFollowingCount(ctx context.Context, userID uuid.UUID, delta int64) error {
	const query = `
		UPDATE users
		SET following_count = GREATEST(following_count + $2, 0), updated_at = NOW()
		WHERE user_id = $1
	`
	return r.adjust(ctx, query, userID, delta)
}

func (r *Repository) adjust(ctx context.Context, query string, userID uuid.UUID, delta int64) error {
	tag, err := r.db.Exec(ctx, query, userID, delta)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to adjust user counter", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *User) error {
	return row.Scan(
		&u.UserID, &u.Handle, &u.DisplayName, &u.Bio, &u.AvatarMediaID, &u.Verified,
		&u.FollowerCount, &u.FollowingCount, &u.CreatedAt, &u.UpdatedAt,
	)
}
