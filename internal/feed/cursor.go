package feed

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
)

// cursor is the keyset position of the last item a client saw. It is
// opaque on the wire: base64 of a small JSON document.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	PostID    uuid.UUID `json:"id"`
}

func encodeCursor(createdAt time.Time, postID uuid.UUID) string {
	data, _ := json.Marshal(cursor{CreatedAt: createdAt, PostID: postID})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, apperr.Wrap(apperr.KindInvalidCursor, "malformed cursor", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, apperr.Wrap(apperr.KindInvalidCursor, "malformed cursor", err)
	}
	if c.CreatedAt.IsZero() || c.PostID == uuid.Nil {
		return c, apperr.New(apperr.KindInvalidCursor, "incomplete cursor")
	}
	return c, nil
}
