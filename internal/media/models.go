package media

import (
	"time"

	"github.com/google/uuid"
)

// Kind selects the constraint set applied at BeginUpload time.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Upload states. Posts may only reference ready media.
const (
	StatePending = "pending"
	StateReady   = "ready"
)

// Documented per-kind limits, enforced before any bytes are accepted.
const (
	MaxVideoSize = 50 * 1024 * 1024 // 50MB
	MaxImageSize = 5 * 1024 * 1024  // 5MB
)

// allowedContentTypes is the per-kind whitelist.
var allowedContentTypes = map[Kind]map[string]bool{
	KindVideo: {
		"video/mp4":       true,
		"video/quicktime": true,
		"video/webm":      true,
	},
	KindImage: {
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/webp": true,
		"image/gif":  true,
	},
}

// MaxSize returns the byte limit for the kind, or 0 for unknown kinds.
func (k Kind) MaxSize() int64 {
	switch k {
	case KindVideo:
		return MaxVideoSize
	case KindImage:
		return MaxImageSize
	}
	return 0
}

// Accepts reports whether the content type is allowed for the kind.
func (k Kind) Accepts(contentType string) bool {
	return allowedContentTypes[k][contentType]
}

// Media tracks one blob through its upload lifecycle.
type Media struct {
	MediaID     uuid.UUID  `json:"media_id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Kind        Kind       `json:"kind"`
	ObjectKey   string     `json:"object_key"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// BeginUploadRequest is the API payload declaring an upload.
type BeginUploadRequest struct {
	Kind        Kind   `json:"kind" binding:"required"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"required"`
}

// BeginUploadResponse carries the presigned target for the client PUT.
type BeginUploadResponse struct {
	MediaID   uuid.UUID `json:"media_id"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt int64     `json:"expires_at"` // unix seconds
}

// URLResponse carries a presigned download URL.
type URLResponse struct {
	MediaID   uuid.UUID `json:"media_id"`
	URL       string    `json:"url"`
	ExpiresAt int64     `json:"expires_at"` // unix seconds
}
