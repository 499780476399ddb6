package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/joho/godotenv/autoload"

	"clipstream/internal/collections"
	"clipstream/internal/comments"
	"clipstream/internal/config"
	"clipstream/internal/database"
	"clipstream/internal/feed"
	"clipstream/internal/follows"
	"clipstream/internal/interactions"
	"clipstream/internal/likes"
	"clipstream/internal/logger"
	"clipstream/internal/media"
	"clipstream/internal/notifier"
	"clipstream/internal/posts"
	"clipstream/internal/server"
	"clipstream/internal/session"
	"clipstream/internal/users"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	log := logger.New()
	logger.SetDefault(log)

	cfg := config.Load()

	slog.Info("Starting clipstream API",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBTimeout)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	sessionMgr := session.NewManager(session.NewRedisStore(redisClient))
	dedupe := interactions.NewRedisDedupe(redisClient, idempotencyTTL)
	slog.Info("Connected to Redis")

	blobs, err := media.NewS3Store(ctx, media.S3Options{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Bucket:         cfg.S3Bucket,
		UseSSL:         cfg.S3UseSSL,
	})
	if err != nil {
		slog.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to object storage", "bucket", cfg.S3Bucket)

	postRepo := posts.NewRepository(db)
	commentRepo := comments.NewRepository(db)
	collectionRepo := collections.NewRepository(db)
	likeRepo := likes.NewRepository(db)
	followRepo := follows.NewRepository(db)
	userRepo := users.NewRepository(db)

	mediaRepo := media.NewRepository(db)
	mediaSvc := media.NewService(mediaRepo, blobs, log)

	hub := notifier.NewHub(log)
	wsHandler := notifier.NewWSHandler(hub, log)

	engine := interactions.NewEngine(
		postRepo, commentRepo, collectionRepo,
		likeRepo, followRepo, userRepo,
		mediaSvc, hub, dedupe, log,
	)
	reconciler := interactions.NewReconciler(db, log)

	authorCache := feed.NewAuthorCache(cfg.AuthorCacheSize, cfg.AuthorCacheTTL)
	feedSvc := feed.NewService(postRepo, userRepo, collectionRepo, authorCache, log)

	srv := server.New(server.Deps{
		DB:          db,
		Engine:      engine,
		Reconciler:  reconciler,
		Feed:        feedSvc,
		Media:       mediaSvc,
		Comments:    commentRepo,
		Collections: collectionRepo,
		Users:       userRepo,
		Sessions:    sessionMgr,
		WS:          wsHandler,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})
	httpServer := srv.HTTPServer(cfg)

	go func() {
		slog.Info("API listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
