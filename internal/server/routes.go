package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cors,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.GET("/health", s.healthHandler)

	api := r.Group("/api")
	api.Use(SessionAuthMiddleware(s.sessions))
	{
		api.GET("/feed", s.getFeedHandler)

		api.POST("/users", s.createUserHandler)
		api.GET("/users/:id", s.getUserHandler)
		api.PATCH("/users/:id", s.updateProfileHandler)
		api.GET("/users/:id/likes", s.getLikedPostsHandler)
		api.GET("/users/:id/posts", s.getUserPostsHandler)
		api.GET("/users/:id/collections", s.getUserCollectionsHandler)
		api.GET("/collections/:id/posts", s.getCollectionPostsHandler)

		api.POST("/posts", s.createPostHandler)
		api.DELETE("/posts/:id", s.deletePostHandler)
		api.PATCH("/posts/:id/collection", s.assignCollectionHandler)

		// Both verbs invoke the same toggle: the edge's current state
		// decides the direction.
		api.POST("/posts/:id/like", s.togglePostLikeHandler)
		api.DELETE("/posts/:id/like", s.togglePostLikeHandler)
		api.POST("/comments/:id/like", s.toggleCommentLikeHandler)
		api.DELETE("/comments/:id/like", s.toggleCommentLikeHandler)

		api.GET("/posts/:id/comments", s.listCommentsHandler)
		api.POST("/posts/:id/comments", s.addCommentHandler)
		api.DELETE("/comments/:id", s.deleteCommentHandler)

		api.POST("/collections", s.createCollectionHandler)

		api.POST("/users/:id/follow", s.followHandler)
		api.DELETE("/users/:id/follow", s.unfollowHandler)

		api.POST("/uploads", s.beginUploadHandler)
		api.POST("/uploads/:id/finalize", s.finalizeUploadHandler)
		api.GET("/media/:id/url", s.getMediaURLHandler)
	}

	wsGroup := r.Group("/ws")
	wsGroup.Use(SessionAuthMiddleware(s.sessions))
	wsGroup.GET("", s.ws.Handle)

	admin := r.Group("/admin")
	admin.Use(SessionAuthMiddleware(s.sessions))
	admin.POST("/reconcile", s.reconcileHandler)

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	response := make(map[string]any)

	dbHealth := make(map[string]string)
	if err := s.db.Health(c.Request.Context()); err != nil {
		dbHealth["status"] = "down"
		dbHealth["error"] = err.Error()
	} else {
		dbHealth["status"] = "up"
	}
	response["database"] = dbHealth

	storageHealth := make(map[string]string)
	if err := s.media.Health(c.Request.Context()); err != nil {
		storageHealth["status"] = "down"
		storageHealth["error"] = err.Error()
	} else {
		storageHealth["status"] = "up"
	}
	response["storage"] = storageHealth

	c.JSON(http.StatusOK, response)
}
