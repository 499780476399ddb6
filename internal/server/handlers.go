package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/collections"
	"clipstream/internal/interactions"
	"clipstream/internal/likes"
	"clipstream/internal/media"
)

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) string {
	return c.GetHeader("Idempotency-Key")
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Newf(apperr.KindValidation, "invalid %s id", name)
	}
	return id, nil
}

func pageParams(c *gin.Context) (cursor string, pageSize int) {
	cursor = c.Query("cursor")
	if raw := c.Query("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			pageSize = n
		}
	}
	return cursor, pageSize
}

// --- feed ---

func (s *Server) getFeedHandler(c *gin.Context) {
	cursor, pageSize := pageParams(c)

	page, err := s.feed.GetFeed(c.Request.Context(), cursor, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getUserPostsHandler(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	cursor, pageSize := pageParams(c)

	page, err := s.feed.GetUserPosts(c.Request.Context(), userID, cursor, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getUserCollectionsHandler(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	cols, err := s.feed.GetUserCollections(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": cols})
}

func (s *Server) getCollectionPostsHandler(c *gin.Context) {
	collectionID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	cursor, pageSize := pageParams(c)

	page, err := s.feed.GetCollectionPosts(c.Request.Context(), collectionID, cursor, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// --- posts ---

type createPostRequest struct {
	MediaID          uuid.UUID  `json:"media_id" binding:"required"`
	ThumbnailMediaID *uuid.UUID `json:"thumbnail_media_id,omitempty"`
	Title            string     `json:"title" binding:"required"`
	Description      string     `json:"description"`
	CollectionID     *uuid.UUID `json:"collection_id,omitempty"`
	CollectionTitle  string     `json:"collection_title,omitempty"`
}

func (s *Server) createPostHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}

	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	post, err := s.engine.CreatePost(c.Request.Context(), interactions.CreatePostRequest{
		OwnerID:          actor,
		MediaID:          req.MediaID,
		ThumbnailMediaID: req.ThumbnailMediaID,
		Title:            req.Title,
		Description:      req.Description,
		CollectionID:     req.CollectionID,
		CollectionTitle:  req.CollectionTitle,
		IdempotencyKey:   idempotencyKey(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) deletePostHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	postID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.engine.DeletePost(c.Request.Context(), postID, actor); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignCollectionRequest struct {
	CollectionID *uuid.UUID `json:"collection_id"` // null detaches
}

func (s *Server) assignCollectionHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	postID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req assignCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	post, err := s.engine.AssignToCollection(c.Request.Context(), postID, req.CollectionID, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// --- likes ---

func (s *Server) togglePostLikeHandler(c *gin.Context) {
	s.toggleLike(c, likes.TargetPost)
}

func (s *Server) toggleCommentLikeHandler(c *gin.Context) {
	s.toggleLike(c, likes.TargetComment)
}

func (s *Server) toggleLike(c *gin.Context, kind likes.TargetKind) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	targetID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := s.engine.ToggleLike(c.Request.Context(), kind, targetID, actor, idempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- comments ---

func (s *Server) listCommentsHandler(c *gin.Context) {
	postID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	list, err := s.comments.ListByPost(c.Request.Context(), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

type addCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) addCommentHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	postID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	comment, err := s.engine.AddComment(c.Request.Context(), postID, actor, req.Body, idempotencyKey(c))
	if err != nil {
		// A comment may have been created even when the counter write
		// failed; surface both.
		if comment != nil && apperr.IsKind(err, apperr.KindPartialFailure) {
			c.JSON(statusFor(apperr.KindPartialFailure), gin.H{
				"error":   apperr.Message(err),
				"kind":    apperr.KindPartialFailure,
				"comment": comment,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) deleteCommentHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	commentID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.engine.DeleteComment(c.Request.Context(), commentID, actor); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- collections ---

func (s *Server) createCollectionHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}

	var req collections.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if len(req.Title) > collections.MaxTitleLength {
		respondError(c, apperr.Newf(apperr.KindValidation, "title exceeds %d characters", collections.MaxTitleLength))
		return
	}

	col, err := s.collections.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

// --- follows ---

func (s *Server) followHandler(c *gin.Context) {
	s.setFollow(c, true)
}

func (s *Server) unfollowHandler(c *gin.Context) {
	s.setFollow(c, false)
}

func (s *Server) setFollow(c *gin.Context, follow bool) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	followeeID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var res *interactions.FollowResult
	if follow {
		res, err = s.engine.Follow(c.Request.Context(), actor, followeeID)
	} else {
		res, err = s.engine.Unfollow(c.Request.Context(), actor, followeeID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- uploads ---

func (s *Server) beginUploadHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}

	var req media.BeginUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	resp, err := s.media.BeginUpload(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) finalizeUploadHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	mediaID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	resp, err := s.media.FinalizeUpload(c.Request.Context(), mediaID, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMediaURLHandler(c *gin.Context) {
	mediaID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	resp, err := s.media.GetURL(c.Request.Context(), mediaID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- admin ---

func (s *Server) reconcileHandler(c *gin.Context) {
	stats, err := s.reconciler.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"corrected": stats.Total(),
		"stats":     stats,
	})
}
