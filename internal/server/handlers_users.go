package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clipstream/internal/apperr"
	"clipstream/internal/users"
)

// createUserHandler creates the profile row for the authenticated
// principal. Identity itself is minted elsewhere; this backfills the
// entity the feed and engine join against.
func (s *Server) createUserHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}

	var req users.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	u, err := s.users.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) getUserHandler(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	u, err := s.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateProfileHandler(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not authenticated"))
		return
	}
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if userID != actor {
		respondError(c, apperr.New(apperr.KindForbidden, "profiles may only be edited by their owner"))
		return
	}

	var req users.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	u, err := s.users.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// getLikedPostsHandler reads the liked-set straight off the like edges.
func (s *Server) getLikedPostsHandler(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	ids, err := s.users.ListLikedPostIDs(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_ids": ids})
}
