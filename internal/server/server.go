// Package server wires the HTTP API: routing, middleware, and the
// handlers that translate requests into engine and service calls.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"clipstream/internal/collections"
	"clipstream/internal/comments"
	"clipstream/internal/config"
	"clipstream/internal/database"
	"clipstream/internal/feed"
	"clipstream/internal/interactions"
	"clipstream/internal/media"
	"clipstream/internal/notifier"
	"clipstream/internal/session"
	"clipstream/internal/users"
)

// Server holds the dependencies for the HTTP API
type Server struct {
	db          database.Service
	engine      *interactions.Engine
	reconciler  *interactions.Reconciler
	feed        *feed.Service
	media       *media.Service
	comments    *comments.Repository
	collections *collections.Repository
	users       *users.Repository
	sessions    session.Manager
	ws          *notifier.WSHandler
	cors        []string
	logger      *slog.Logger
}

// Deps carries everything the API layer depends on.
type Deps struct {
	DB          database.Service
	Engine      *interactions.Engine
	Reconciler  *interactions.Reconciler
	Feed        *feed.Service
	Media       *media.Service
	Comments    *comments.Repository
	Collections *collections.Repository
	Users       *users.Repository
	Sessions    session.Manager
	WS          *notifier.WSHandler
	CORSOrigins []string
	Logger      *slog.Logger
}

func New(deps Deps) *Server {
	return &Server{
		db:          deps.DB,
		engine:      deps.Engine,
		reconciler:  deps.Reconciler,
		feed:        deps.Feed,
		media:       deps.Media,
		comments:    deps.Comments,
		collections: deps.Collections,
		users:       deps.Users,
		sessions:    deps.Sessions,
		ws:          deps.WS,
		cors:        deps.CORSOrigins,
		logger:      deps.Logger,
	}
}

// HTTPServer builds the http.Server with timeouts from config.
func (s *Server) HTTPServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.RegisterRoutes(),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
