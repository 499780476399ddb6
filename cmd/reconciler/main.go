package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	_ "github.com/joho/godotenv/autoload"

	"clipstream/internal/config"
	"clipstream/internal/database"
	"clipstream/internal/interactions"
	"clipstream/internal/logger"
)

const sweepTimeout = 2 * time.Minute

func main() {
	log := logger.New()
	logger.SetDefault(log)

	cfg := config.Load()

	slog.Info("Starting reconciler", "interval", cfg.ReconcileInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bulk correction sweeps run longer than request-path queries, so
	// the per-call bound is wider than the API server's.
	db, err := database.New(ctx, cfg.DatabaseURL, sweepTimeout)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database")

	reconciler := interactions.NewReconciler(db, log)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	runOnce(ctx, reconciler)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Reconciler stopped")
			return
		case <-ticker.C:
			runOnce(ctx, reconciler)
		}
	}
}

// runOnce executes a sweep, retrying transient failures with
// exponential backoff inside the current interval.
func runOnce(ctx context.Context, r *interactions.Reconciler) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	op := func() error {
		stats, err := r.Run(ctx)
		if err != nil {
			slog.Warn("Reconciliation sweep failed", "error", err)
			return err
		}
		if stats.Total() > 0 {
			slog.Info("Reconciliation corrected drift",
				"post_like_counts", stats.PostLikeCounts,
				"comment_like_counts", stats.CommentLikeCounts,
				"post_comment_counts", stats.PostCommentCounts,
				"collection_items", stats.CollectionItems,
				"user_follow_counts", stats.UserFollowCounts,
			)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil && ctx.Err() == nil {
		slog.Error("Reconciliation sweep abandoned", "error", err)
	}
}
