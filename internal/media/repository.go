package media

import (
	"context"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

// Repository tracks media rows through the upload lifecycle.
type Repository struct {
	db database.Service
}

func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, m *Media) (*Media, error) {
	const query = `
		INSERT INTO media (media_id, owner_id, kind, object_key, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING media_id, owner_id, kind, object_key, content_type, size_bytes, state, created_at, finalized_at
	`

	out := &Media{}
	err := r.db.QueryRow(ctx, query,
		m.MediaID, m.OwnerID, m.Kind, m.ObjectKey, m.ContentType, m.SizeBytes,
	).Scan(
		&out.MediaID, &out.OwnerID, &out.Kind, &out.ObjectKey, &out.ContentType,
		&out.SizeBytes, &out.State, &out.CreatedAt, &out.FinalizedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to create media record", err)
	}
	return out, nil
}

func (r *Repository) GetByID(ctx context.Context, mediaID uuid.UUID) (*Media, error) {
	const query = `
		SELECT media_id, owner_id, kind, object_key, content_type, size_bytes, state, created_at, finalized_at
		FROM media WHERE media_id = $1
	`

	m := &Media{}
	err := r.db.QueryRow(ctx, query, mediaID).Scan(
		&m.MediaID, &m.OwnerID, &m.Kind, &m.ObjectKey, &m.ContentType,
		&m.SizeBytes, &m.State, &m.CreatedAt, &m.FinalizedAt,
	)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "media not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get media record", err)
	}
	return m, nil
}

// MarkReady transitions pending media to ready. Idempotent: marking
// ready media again succeeds without changing finalized_at.
func (r *Repository) MarkReady(ctx context.Context, mediaID uuid.UUID) error {
	const query = `
		UPDATE media SET state = 'ready', finalized_at = COALESCE(finalized_at, NOW())
		WHERE media_id = $1
	`

	tag, err := r.db.Exec(ctx, query, mediaID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to finalize media record", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "media not found")
	}
	return nil
}
