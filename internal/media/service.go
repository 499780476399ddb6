package media

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
)

// Presign lifetimes. Upload URLs are short-lived; download URLs may be
// embedded in feed responses and live longer.
const (
	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = 1 * time.Hour
)

// Store is the slice of the repository the gateway needs.
type Store interface {
	Create(ctx context.Context, m *Media) (*Media, error)
	GetByID(ctx context.Context, mediaID uuid.UUID) (*Media, error)
	MarkReady(ctx context.Context, mediaID uuid.UUID) error
}

// Service is the storage gateway: it validates upload declarations
// before any bytes move, hands out presigned URLs, and tracks each
// blob's pending-to-ready lifecycle.
type Service struct {
	repo   Store
	blobs  BlobStore
	logger *slog.Logger
}

func NewService(repo Store, blobs BlobStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, logger: logger}
}

// BeginUpload validates the declared kind, content type and size, then
// creates a pending media row and returns a presigned PUT URL. Limits
// are enforced here, before the client sends a single byte.
func (s *Service) BeginUpload(ctx context.Context, ownerID uuid.UUID, req *BeginUploadRequest) (*BeginUploadResponse, error) {
	if req.Kind != KindVideo && req.Kind != KindImage {
		return nil, apperr.Newf(apperr.KindValidation, "unknown media kind %q", req.Kind)
	}
	if !req.Kind.Accepts(req.ContentType) {
		return nil, apperr.Newf(apperr.KindUnsupportedType, "content type %q is not allowed for %s uploads", req.ContentType, req.Kind)
	}
	if req.SizeBytes <= 0 {
		return nil, apperr.New(apperr.KindValidation, "size_bytes must be positive")
	}
	if req.SizeBytes > req.Kind.MaxSize() {
		return nil, apperr.Newf(apperr.KindQuotaExceeded, "%s uploads are limited to %d bytes", req.Kind, req.Kind.MaxSize())
	}
	if err := validateFilename(req.Filename); err != nil {
		return nil, err
	}

	mediaID := uuid.New()
	m := &Media{
		MediaID:     mediaID,
		OwnerID:     ownerID,
		Kind:        req.Kind,
		ObjectKey:   objectKey(ownerID, mediaID, req.Filename),
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	}

	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.PresignPut(ctx, created.ObjectKey, created.ContentType, uploadURLTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to presign upload", err)
	}

	s.logger.Info("upload started",
		"media_id", created.MediaID,
		"owner_id", ownerID,
		"kind", created.Kind,
		"size_bytes", created.SizeBytes,
	)

	return &BeginUploadResponse{
		MediaID:   created.MediaID,
		UploadURL: url,
		ExpiresAt: time.Now().Add(uploadURLTTL).Unix(),
	}, nil
}

// FinalizeUpload checks that the blob was actually written before
// marking the media ready. Finalizing already-ready media is a no-op
// that returns a fresh download URL.
func (s *Service) FinalizeUpload(ctx context.Context, mediaID, ownerID uuid.UUID) (*URLResponse, error) {
	m, err := s.repo.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, apperr.New(apperr.KindForbidden, "media belongs to another user")
	}

	if m.State != StateReady {
		ok, err := s.blobs.Exists(ctx, m.ObjectKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to check uploaded object", err)
		}
		if !ok {
			return nil, apperr.New(apperr.KindUploadIncomplete, "upload has not completed")
		}
		if err := s.repo.MarkReady(ctx, mediaID); err != nil {
			return nil, err
		}
		s.logger.Info("upload finalized", "media_id", mediaID, "owner_id", ownerID)
	}

	return s.presignDownload(ctx, m)
}

// GetURL returns a presigned download URL for ready media. It is
// idempotent and safe to call repeatedly.
func (s *Service) GetURL(ctx context.Context, mediaID uuid.UUID) (*URLResponse, error) {
	m, err := s.repo.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.State != StateReady {
		return nil, apperr.New(apperr.KindUploadIncomplete, "upload has not completed")
	}
	return s.presignDownload(ctx, m)
}

// VerifyReady reports whether the media exists, belongs to the owner
// and has completed its upload. Post creation gates on this.
func (s *Service) VerifyReady(ctx context.Context, mediaID, ownerID uuid.UUID) error {
	m, err := s.repo.GetByID(ctx, mediaID)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return apperr.New(apperr.KindForbidden, "media belongs to another user")
	}
	if m.State != StateReady {
		return apperr.New(apperr.KindUploadIncomplete, "media upload has not completed")
	}
	return nil
}

// Health pings the object store.
func (s *Service) Health(ctx context.Context) error {
	return s.blobs.Health(ctx)
}

func (s *Service) presignDownload(ctx context.Context, m *Media) (*URLResponse, error) {
	url, err := s.blobs.PresignGet(ctx, m.ObjectKey, downloadURLTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to presign download", err)
	}
	return &URLResponse{
		MediaID:   m.MediaID,
		URL:       url,
		ExpiresAt: time.Now().Add(downloadURLTTL).Unix(),
	}, nil
}

// objectKey namespaces blobs by owner and media id so keys never
// collide and per-user cleanup stays a prefix operation.
func objectKey(ownerID, mediaID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("uploads/%s/%s%s", ownerID, mediaID, ext)
}

func validateFilename(name string) error {
	if name == "" {
		return apperr.New(apperr.KindValidation, "filename is required")
	}
	if len(name) > 255 {
		return apperr.New(apperr.KindValidation, "filename is too long")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return apperr.New(apperr.KindValidation, "filename contains invalid characters")
	}
	return nil
}
