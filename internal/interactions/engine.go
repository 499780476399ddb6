// Package interactions is the only component allowed to mutate
// aggregate counters. Edges (likes, follows) and child rows (comments)
// are the source of truth; counters are cached aggregates that a
// reconciliation sweep can always rebuild.
package interactions

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/collections"
	"clipstream/internal/comments"
	"clipstream/internal/likes"
	"clipstream/internal/notifier"
	"clipstream/internal/posts"
	"clipstream/internal/users"
)

// Store contracts the engine needs, satisfied by the concrete
// repositories. Tests substitute in-memory fakes.

type PostStore interface {
	Create(ctx context.Context, p *posts.Post) (*posts.Post, error)
	GetByID(ctx context.Context, postID uuid.UUID) (*posts.Post, error)
	Delete(ctx context.Context, postID uuid.UUID) error
	SetCollection(ctx context.Context, postID uuid.UUID, collectionID *uuid.UUID) error
	AdjustLikeCount(ctx context.Context, postID uuid.UUID, delta int64) error
	AdjustCommentCount(ctx context.Context, postID uuid.UUID, delta int64) error
}

type CommentStore interface {
	Create(ctx context.Context, c *comments.Comment) (*comments.Comment, error)
	GetByID(ctx context.Context, commentID uuid.UUID) (*comments.Comment, error)
	Delete(ctx context.Context, commentID uuid.UUID) error
	AdjustLikeCount(ctx context.Context, commentID uuid.UUID, delta int64) error
}

type CollectionStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, req collections.CreateCollectionRequest) (*collections.Collection, error)
	GetByID(ctx context.Context, collectionID uuid.UUID) (*collections.Collection, error)
	EnsureByTitle(ctx context.Context, ownerID uuid.UUID, title string) (*collections.Collection, error)
	AdjustItemCount(ctx context.Context, collectionID uuid.UUID, delta int64) error
}

type LikeStore interface {
	Insert(ctx context.Context, kind likes.TargetKind, targetID, userID uuid.UUID) (bool, error)
	Delete(ctx context.Context, kind likes.TargetKind, targetID, userID uuid.UUID) (bool, error)
	DeleteAllForTarget(ctx context.Context, kind likes.TargetKind, targetID uuid.UUID) error
	DeleteAllForPostComments(ctx context.Context, postID uuid.UUID) error
}

type FollowStore interface {
	Insert(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*users.User, error)
	AdjustFollowerCount(ctx context.Context, userID uuid.UUID, delta int64) error
	AdjustFollowingCount(ctx context.Context, userID uuid.UUID, delta int64) error
}

// MediaStore verifies that an upload was finalized before a post may
// reference it.
type MediaStore interface {
	VerifyReady(ctx context.Context, mediaID, ownerID uuid.UUID) error
}

// Publisher receives an event after every successful mutation.
type Publisher interface {
	Publish(resource, eventType string, payload any)
}

// Engine enforces the interaction business rules.
type Engine struct {
	posts       PostStore
	comments    CommentStore
	collections CollectionStore
	likes       LikeStore
	follows     FollowStore
	users       UserStore
	media       MediaStore
	publisher   Publisher
	dedupe      Dedupe

	// toggleLocks serializes in-flight toggles per (user, target) pair
	// so a double-toggle race cannot move the edge and the counter in
	// opposite directions.
	toggleLocks *keyedMutex

	counterRetries uint64
	logger         *slog.Logger
}

func NewEngine(
	postStore PostStore,
	commentStore CommentStore,
	collectionStore CollectionStore,
	likeStore LikeStore,
	followStore FollowStore,
	userStore UserStore,
	mediaStore MediaStore,
	publisher Publisher,
	dedupe Dedupe,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		posts:          postStore,
		comments:       commentStore,
		collections:    collectionStore,
		likes:          likeStore,
		follows:        followStore,
		users:          userStore,
		media:          mediaStore,
		publisher:      publisher,
		dedupe:         dedupe,
		toggleLocks:    newKeyedMutex(),
		counterRetries: 3,
		logger:         logger,
	}
}

// ToggleLikeResult reports the state after a toggle.
type ToggleLikeResult struct {
	TargetKind likes.TargetKind `json:"target_kind"`
	TargetID   uuid.UUID        `json:"target_id"`
	Liked      bool             `json:"liked"`
	LikeCount  int64            `json:"like_count"`
}

// ToggleLike flips the like edge for (target, user) and applies the
// paired counter delta. The edge write decides the direction; the
// counter write is retried and, if it still fails, the edge stands as
// authoritative and PartialFailure is returned for reconciliation to
// repair.
func (e *Engine) ToggleLike(ctx context.Context, kind likes.TargetKind, targetID, userID uuid.UUID, idemKey string) (*ToggleLikeResult, error) {
	if !kind.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, "unknown like target kind %q", kind)
	}

	if res, done, err := beginIdempotent[ToggleLikeResult](ctx, e.dedupe, idemKey); done {
		return res, err
	}

	unlock := e.toggleLocks.Lock("like:" + string(kind) + ":" + targetID.String() + ":" + userID.String())
	defer unlock()

	// The target must exist before an edge may reference it.
	if err := e.verifyLikeTarget(ctx, kind, targetID); err != nil {
		e.releaseIdempotent(ctx, idemKey)
		return nil, err
	}

	created, err := e.likes.Insert(ctx, kind, targetID, userID)
	if err != nil {
		e.releaseIdempotent(ctx, idemKey)
		return nil, err
	}

	liked := created
	delta := int64(1)
	if !created {
		deleted, err := e.likes.Delete(ctx, kind, targetID, userID)
		if err != nil {
			e.releaseIdempotent(ctx, idemKey)
			return nil, err
		}
		if !deleted {
			// Cannot happen under the pair lock, but fail loudly
			// instead of guessing a direction.
			e.releaseIdempotent(ctx, idemKey)
			return nil, apperr.New(apperr.KindUnavailable, "like edge vanished during toggle")
		}
		liked = false
		delta = -1
	}

	if err := e.retryCounter(ctx, func() error {
		return e.adjustLikeCounter(ctx, kind, targetID, delta)
	}); err != nil {
		e.logger.Error("like counter update failed, edge is authoritative",
			"target_kind", kind, "target_id", targetID, "delta", delta, "error", err)
		return nil, apperr.Wrap(apperr.KindPartialFailure,
			"like recorded but counter update pending reconciliation", err)
	}

	result := &ToggleLikeResult{
		TargetKind: kind,
		TargetID:   targetID,
		Liked:      liked,
		LikeCount:  e.currentLikeCount(ctx, kind, targetID),
	}

	e.publishLike(kind, targetID, userID, result)
	e.completeIdempotent(ctx, idemKey, result)
	return result, nil
}

func (e *Engine) verifyLikeTarget(ctx context.Context, kind likes.TargetKind, targetID uuid.UUID) error {
	switch kind {
	case likes.TargetPost:
		_, err := e.posts.GetByID(ctx, targetID)
		return err
	case likes.TargetComment:
		_, err := e.comments.GetByID(ctx, targetID)
		return err
	}
	return apperr.Newf(apperr.KindValidation, "unknown like target kind %q", kind)
}

func (e *Engine) adjustLikeCounter(ctx context.Context, kind likes.TargetKind, targetID uuid.UUID, delta int64) error {
	if kind == likes.TargetPost {
		return e.posts.AdjustLikeCount(ctx, targetID, delta)
	}
	return e.comments.AdjustLikeCount(ctx, targetID, delta)
}

func (e *Engine) currentLikeCount(ctx context.Context, kind likes.TargetKind, targetID uuid.UUID) int64 {
	if kind == likes.TargetPost {
		if p, err := e.posts.GetByID(ctx, targetID); err == nil {
			return p.LikeCount
		}
	} else {
		if c, err := e.comments.GetByID(ctx, targetID); err == nil {
			return c.LikeCount
		}
	}
	return -1 // unknown; the mutation itself succeeded
}

func (e *Engine) publishLike(kind likes.TargetKind, targetID, userID uuid.UUID, res *ToggleLikeResult) {
	resource := notifier.PostResource(targetID)
	if kind == likes.TargetComment {
		resource = notifier.CommentResource(targetID)
	}
	e.publisher.Publish(resource, notifier.EventLikeCountChanged, map[string]any{
		"target_kind": kind,
		"target_id":   targetID,
		"user_id":     userID,
		"liked":       res.Liked,
		"like_count":  res.LikeCount,
	})
}

// AddComment validates and creates a comment, then increments the
// post's comment counter. Comments are never rolled back: if the
// counter write fails after retries the comment stays visible and
// reconciliation corrects the aggregate.
func (e *Engine) AddComment(ctx context.Context, postID, userID uuid.UUID, body, idemKey string) (*comments.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.New(apperr.KindValidation, "comment body cannot be empty")
	}
	if len(body) > comments.MaxBodyLength {
		return nil, apperr.Newf(apperr.KindValidation, "comment body exceeds %d characters", comments.MaxBodyLength)
	}

	if res, done, err := beginIdempotent[comments.Comment](ctx, e.dedupe, idemKey); done {
		return res, err
	}

	if _, err := e.posts.GetByID(ctx, postID); err != nil {
		e.releaseIdempotent(ctx, idemKey)
		return nil, err
	}

	created, err := e.comments.Create(ctx, &comments.Comment{
		CommentID: uuid.New(),
		PostID:    postID,
		AuthorID:  userID,
		Body:      body,
	})
	if err != nil {
		e.releaseIdempotent(ctx, idemKey)
		return nil, err
	}

	if err := e.retryCounter(ctx, func() error {
		return e.posts.AdjustCommentCount(ctx, postID, 1)
	}); err != nil {
		e.logger.Error("comment counter update failed, comment stands",
			"post_id", postID, "comment_id", created.CommentID, "error", err)
		return created, apperr.Wrap(apperr.KindPartialFailure,
			"comment created but counter update pending reconciliation", err)
	}

	e.publisher.Publish(notifier.PostCommentsResource(postID), notifier.EventCommentAdded, created)
	e.completeIdempotent(ctx, idemKey, created)
	return created, nil
}

// DeleteComment removes the actor's own comment and decrements the
// post's comment counter.
func (e *Engine) DeleteComment(ctx context.Context, commentID, actorID uuid.UUID) error {
	c, err := e.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actorID {
		return apperr.New(apperr.KindForbidden, "only the comment author may delete it")
	}

	if err := e.comments.Delete(ctx, commentID); err != nil {
		return err
	}
	if err := e.likes.DeleteAllForTarget(ctx, likes.TargetComment, commentID); err != nil {
		e.logger.Warn("failed to clear comment like edges", "comment_id", commentID, "error", err)
	}

	if err := e.retryCounter(ctx, func() error {
		return e.posts.AdjustCommentCount(ctx, c.PostID, -1)
	}); err != nil {
		e.logger.Error("comment counter decrement failed",
			"post_id", c.PostID, "comment_id", commentID, "error", err)
		return apperr.Wrap(apperr.KindPartialFailure,
			"comment deleted but counter update pending reconciliation", err)
	}

	e.publisher.Publish(notifier.PostCommentsResource(c.PostID), notifier.EventCommentDeleted, map[string]any{
		"comment_id": commentID,
		"post_id":    c.PostID,
	})
	return nil
}

// CreatePostRequest carries everything needed to publish a post.
// CollectionTitle supports implicit collection creation on upload; it
// is ignored when CollectionID is set.
type CreatePostRequest struct {
	OwnerID          uuid.UUID
	MediaID          uuid.UUID
	ThumbnailMediaID *uuid.UUID
	Title            string
	Description      string
	CollectionID     *uuid.UUID
	CollectionTitle  string
	IdempotencyKey   string
}

// CreatePost publishes a post referencing finalized media, resolving
// or implicitly creating the named collection.
func (e *Engine) CreatePost(ctx context.Context, req CreatePostRequest) (*posts.Post, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.New(apperr.KindValidation, "post title cannot be empty")
	}

	if res, done, err := beginIdempotent[posts.Post](ctx, e.dedupe, req.IdempotencyKey); done {
		return res, err
	}

	if err := e.media.VerifyReady(ctx, req.MediaID, req.OwnerID); err != nil {
		e.releaseIdempotent(ctx, req.IdempotencyKey)
		return nil, err
	}

	collectionID, err := e.resolveCollection(ctx, req)
	if err != nil {
		e.releaseIdempotent(ctx, req.IdempotencyKey)
		return nil, err
	}

	created, err := e.posts.Create(ctx, &posts.Post{
		PostID:           uuid.New(),
		OwnerID:          req.OwnerID,
		MediaID:          req.MediaID,
		ThumbnailMediaID: req.ThumbnailMediaID,
		Title:            title,
		Description:      req.Description,
		CollectionID:     collectionID,
	})
	if err != nil {
		e.releaseIdempotent(ctx, req.IdempotencyKey)
		return nil, err
	}

	if collectionID != nil {
		if err := e.retryCounter(ctx, func() error {
			return e.collections.AdjustItemCount(ctx, *collectionID, 1)
		}); err != nil {
			e.logger.Error("collection counter update failed, post stands",
				"post_id", created.PostID, "collection_id", *collectionID, "error", err)
			return created, apperr.Wrap(apperr.KindPartialFailure,
				"post created but collection counter pending reconciliation", err)
		}
	}

	e.publisher.Publish(notifier.FeedResource, notifier.EventPostCreated, created)
	e.publisher.Publish(notifier.UserResource(req.OwnerID), notifier.EventPostCreated, created)
	e.completeIdempotent(ctx, req.IdempotencyKey, created)
	return created, nil
}

func (e *Engine) resolveCollection(ctx context.Context, req CreatePostRequest) (*uuid.UUID, error) {
	if req.CollectionID != nil {
		col, err := e.collections.GetByID(ctx, *req.CollectionID)
		if err != nil {
			return nil, err
		}
		if col.OwnerID != req.OwnerID {
			return nil, apperr.New(apperr.KindForbidden, "collection belongs to another user")
		}
		return &col.CollectionID, nil
	}

	if title := strings.TrimSpace(req.CollectionTitle); title != "" {
		if len(title) > collections.MaxTitleLength {
			return nil, apperr.Newf(apperr.KindValidation, "collection title exceeds %d characters", collections.MaxTitleLength)
		}
		col, err := e.collections.EnsureByTitle(ctx, req.OwnerID, title)
		if err != nil {
			return nil, err
		}
		return &col.CollectionID, nil
	}

	return nil, nil
}

// DeletePost removes the owner's post together with its like edges and
// comments, and releases its collection slot.
func (e *Engine) DeletePost(ctx context.Context, postID, actorID uuid.UUID) error {
	p, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if p.OwnerID != actorID {
		return apperr.New(apperr.KindForbidden, "only the post owner may delete it")
	}

	// Edges referencing soon-to-cascade comments go first so no
	// orphaned like rows survive the delete.
	if err := e.likes.DeleteAllForPostComments(ctx, postID); err != nil {
		e.logger.Warn("failed to clear comment like edges", "post_id", postID, "error", err)
	}
	if err := e.likes.DeleteAllForTarget(ctx, likes.TargetPost, postID); err != nil {
		e.logger.Warn("failed to clear post like edges", "post_id", postID, "error", err)
	}

	if err := e.posts.Delete(ctx, postID); err != nil {
		return err
	}

	if p.CollectionID != nil {
		if err := e.retryCounter(ctx, func() error {
			return e.collections.AdjustItemCount(ctx, *p.CollectionID, -1)
		}); err != nil {
			e.logger.Error("collection counter decrement failed",
				"post_id", postID, "collection_id", *p.CollectionID, "error", err)
			return apperr.Wrap(apperr.KindPartialFailure,
				"post deleted but collection counter pending reconciliation", err)
		}
	}

	e.publisher.Publish(notifier.FeedResource, notifier.EventPostDeleted, map[string]any{"post_id": postID})
	e.publisher.Publish(notifier.PostResource(postID), notifier.EventPostDeleted, map[string]any{"post_id": postID})
	return nil
}

// AssignToCollection moves a post between the actor's collections (or
// out of any collection when collectionID is nil). The two counter
// sides form a saga: each side is retried independently and a
// half-applied move surfaces as PartialFailure for reconciliation.
func (e *Engine) AssignToCollection(ctx context.Context, postID uuid.UUID, collectionID *uuid.UUID, actorID uuid.UUID) (*posts.Post, error) {
	p, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, apperr.New(apperr.KindForbidden, "only the post owner may move it")
	}

	if collectionID != nil {
		col, err := e.collections.GetByID(ctx, *collectionID)
		if err != nil {
			return nil, err
		}
		if col.OwnerID != actorID {
			return nil, apperr.New(apperr.KindForbidden, "collection belongs to another user")
		}
	}

	if equalID(p.CollectionID, collectionID) {
		return p, nil
	}

	if err := e.posts.SetCollection(ctx, postID, collectionID); err != nil {
		return nil, err
	}

	var sagaErr error
	if p.CollectionID != nil {
		if err := e.retryCounter(ctx, func() error {
			return e.collections.AdjustItemCount(ctx, *p.CollectionID, -1)
		}); err != nil {
			sagaErr = err
		}
	}
	if collectionID != nil {
		if err := e.retryCounter(ctx, func() error {
			return e.collections.AdjustItemCount(ctx, *collectionID, 1)
		}); err != nil {
			sagaErr = err
		}
	}
	if sagaErr != nil {
		e.logger.Error("collection move counters incomplete",
			"post_id", postID, "error", sagaErr)
		return nil, apperr.Wrap(apperr.KindPartialFailure,
			"post moved but collection counters pending reconciliation", sagaErr)
	}

	moved, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		moved = p
		moved.CollectionID = collectionID
	}

	e.publisher.Publish(notifier.PostResource(postID), notifier.EventCollectionChanged, map[string]any{
		"post_id":       postID,
		"collection_id": collectionID,
	})
	return moved, nil
}

// FollowResult reports the state after a follow or unfollow.
type FollowResult struct {
	FollowerID uuid.UUID `json:"follower_id"`
	FolloweeID uuid.UUID `json:"followee_id"`
	Following  bool      `json:"following"`
}

// Follow creates the follow edge and adjusts both users' aggregates.
// Following someone you already follow is a no-op success.
func (e *Engine) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*FollowResult, error) {
	return e.setFollow(ctx, followerID, followeeID, true)
}

// Unfollow removes the edge; removing a non-existent edge is a no-op.
func (e *Engine) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (*FollowResult, error) {
	return e.setFollow(ctx, followerID, followeeID, false)
}

func (e *Engine) setFollow(ctx context.Context, followerID, followeeID uuid.UUID, want bool) (*FollowResult, error) {
	if followerID == followeeID {
		return nil, apperr.New(apperr.KindValidation, "cannot follow yourself")
	}
	if _, err := e.users.GetByID(ctx, followeeID); err != nil {
		return nil, err
	}

	unlock := e.toggleLocks.Lock("follow:" + followerID.String() + ":" + followeeID.String())
	defer unlock()

	var changed bool
	var err error
	var delta int64
	if want {
		changed, err = e.follows.Insert(ctx, followerID, followeeID)
		delta = 1
	} else {
		changed, err = e.follows.Delete(ctx, followerID, followeeID)
		delta = -1
	}
	if err != nil {
		return nil, err
	}

	result := &FollowResult{FollowerID: followerID, FolloweeID: followeeID, Following: want}
	if !changed {
		return result, nil
	}

	var counterErr error
	if err := e.retryCounter(ctx, func() error {
		return e.users.AdjustFollowerCount(ctx, followeeID, delta)
	}); err != nil {
		counterErr = err
	}
	if err := e.retryCounter(ctx, func() error {
		return e.users.AdjustFollowingCount(ctx, followerID, delta)
	}); err != nil {
		counterErr = err
	}
	if counterErr != nil {
		e.logger.Error("follow counters incomplete, edge is authoritative",
			"follower_id", followerID, "followee_id", followeeID, "error", counterErr)
		return nil, apperr.Wrap(apperr.KindPartialFailure,
			"follow recorded but counters pending reconciliation", counterErr)
	}

	e.publisher.Publish(notifier.UserResource(followeeID), notifier.EventFollowCountChanged, result)
	return result, nil
}

// retryCounter retries a counter mutation with capped exponential
// backoff. NotFound is permanent: the target is gone and the sweep
// will not miss it.
func (e *Engine) retryCounter(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if apperr.IsKind(err, apperr.KindNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, e.counterRetries), ctx))
}

// beginIdempotent claims the key. done=true means the caller should
// return immediately: either a stored first result (replay) or an
// error. A zero key disables deduplication.
func beginIdempotent[T any](ctx context.Context, d Dedupe, key string) (*T, bool, error) {
	if d == nil || key == "" {
		return nil, false, nil
	}

	first, stored, err := d.Begin(ctx, key)
	if err != nil {
		return nil, true, err
	}
	if first {
		return nil, false, nil
	}

	var result T
	if err := json.Unmarshal(stored, &result); err != nil {
		return nil, true, apperr.Wrap(apperr.KindUnavailable, "stored idempotency result unreadable", err)
	}
	return &result, true, nil
}

func (e *Engine) completeIdempotent(ctx context.Context, key string, result any) {
	if e.dedupe == nil || key == "" {
		return
	}
	data, err := json.Marshal(result)
	if err == nil {
		err = e.dedupe.Complete(ctx, key, data)
	}
	if err != nil {
		e.logger.Warn("failed to store idempotency result", "key", key, "error", err)
	}
}

func (e *Engine) releaseIdempotent(ctx context.Context, key string) {
	if e.dedupe == nil || key == "" {
		return
	}
	if err := e.dedupe.Release(ctx, key); err != nil {
		e.logger.Warn("failed to release idempotency key", "key", key, "error", err)
	}
}

func equalID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
