package collections

import (
	"context"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

// Repository handles all database operations for collections.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// Create inserts a collection. Titles are unique per owner,
// case-insensitive.
func (r *Repository) Create(ctx context.Context, ownerID uuid.UUID, req CreateCollectionRequest) (*Collection, error) {
	const query = `
		INSERT INTO collections (collection_id, owner_id, title, description, cover_media_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING collection_id, owner_id, title, description, cover_media_id,
			item_count, created_at, updated_at
	`

	c := &Collection{}
	err := scanCollection(r.db.QueryRow(ctx, query, uuid.New(), ownerID, req.Title, req.Description, req.CoverMediaID), c)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "collection %q already exists", req.Title)
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to create collection", err)
	}
	return c, nil
}

// EnsureByTitle returns the owner's collection with the given title,
// creating it when it does not exist. Used for implicit creation on
// first upload naming a new collection.
func (r *Repository) EnsureByTitle(ctx context.Context, ownerID uuid.UUID, title string) (*Collection, error) {
	existing, err := r.GetByOwnerAndTitle(ctx, ownerID, title)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	created, err := r.Create(ctx, ownerID, CreateCollectionRequest{Title: title})
	if apperr.IsKind(err, apperr.KindConflict) {
		// Lost a create race; the winner's row is the one we want.
		return r.GetByOwnerAndTitle(ctx, ownerID, title)
	}
	return created, err
}

func (r *Repository) GetByID(ctx context.Context, collectionID uuid.UUID) (*Collection, error) {
	const query = `
		SELECT collection_id, owner_id, title, description, cover_media_id,
			item_count, created_at, updated_at
		FROM collections WHERE collection_id = $1
	`

	c := &Collection{}
	err := scanCollection(r.db.QueryRow(ctx, query, collectionID), c)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "collection not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get collection", err)
	}
	return c, nil
}

func (r *Repository) GetByOwnerAndTitle(ctx context.Context, ownerID uuid.UUID, title string) (*Collection, error) {
	const query = `
		SELECT collection_id, owner_id, title, description, cover_media_id,
			item_count, created_at, updated_at
		FROM collections
		WHERE owner_id = $1 AND lower(title) = lower($2)
	`

	c := &Collection{}
	err := scanCollection(r.db.QueryRow(ctx, query, ownerID, title), c)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "collection not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get collection", err)
	}
	return c, nil
}

// ListByOwner returns all of one user's collections, oldest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Collection, error) {
	const query = `
		SELECT collection_id, owner_id, title, description, cover_media_id,
			item_count, created_at, updated_at
		FROM collections
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to query collections", err)
	}
	defer rows.Close()

	out := []Collection{}
	for rows.Next() {
		var c Collection
		if err := scanCollection(rows, &c); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to scan collection", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate collections", err)
	}
	return out, nil
}

// AdjustItemCount moves the item aggregate by delta, floored at zero.
// Only the interaction engine calls this.
func (r *Repository) AdjustItemCount(ctx context.Context, collectionID uuid.UUID, delta int64) error {
	const query = `
		UPDATE collections
		SET item_count = GREATEST(item_count + $2, 0), updated_at = NOW()
		WHERE collection_id = $1
	`

	tag, err := r.db.Exec(ctx, query, collectionID, delta)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to adjust collection counter", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "collection not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner, c *Collection) error {
	return row.Scan(
		&c.CollectionID, &c.OwnerID, &c.Title, &c.Description, &c.CoverMediaID,
		&c.ItemCount, &c.CreatedAt, &c.UpdatedAt,
	)
}
