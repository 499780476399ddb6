package interactions

import (
	"context"
	"log/slog"

	"clipstream/internal/apperr"
	"clipstream/internal/database"
)

// Reconciler recomputes every cached aggregate from its authoritative
// backing rows. It is the safety net behind the engine's non-serialized
// counter contract: after a sweep, every counter equals the true count
// of its edges or children regardless of prior interleaving.
type Reconciler struct {
	db     database.Service
	logger *slog.Logger
}

func NewReconciler(db database.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// Stats reports how many rows each pass corrected.
type Stats struct {
	PostLikeCounts    int64 `json:"post_like_counts"`
	CommentLikeCounts int64 `json:"comment_like_counts"`
	PostCommentCounts int64 `json:"post_comment_counts"`
	CollectionItems   int64 `json:"collection_items"`
	UserFollowCounts  int64 `json:"user_follow_counts"`
}

// Total returns the number of corrected rows across all passes.
func (s Stats) Total() int64 {
	return s.PostLikeCounts + s.CommentLikeCounts + s.PostCommentCounts +
		s.CollectionItems + s.UserFollowCounts
}

type pass struct {
	name    string
	query   string
	counter *int64
}

// Run executes every reconciliation pass. Passes are independent; a
// failing pass aborts the sweep so the next run starts clean.
func (r *Reconciler) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	passes := []pass{
		{
			name: "post like counts",
			query: `
				UPDATE posts p SET like_count = sub.n
				FROM (
					SELECT pp.post_id, COALESCE(l.n, 0) AS n
					FROM posts pp
					LEFT JOIN (
						SELECT target_id, COUNT(*) AS n FROM likes
						WHERE target_kind = 'post' GROUP BY target_id
					) l ON l.target_id = pp.post_id
				) sub
				WHERE p.post_id = sub.post_id AND p.like_count <> sub.n
			`,
			counter: &stats.PostLikeCounts,
		},
		{
			name: "comment like counts",
			query: `
				UPDATE comments c SET like_count = sub.n
				FROM (
					SELECT cc.comment_id, COALESCE(l.n, 0) AS n
					FROM comments cc
					LEFT JOIN (
						SELECT target_id, COUNT(*) AS n FROM likes
						WHERE target_kind = 'comment' GROUP BY target_id
					) l ON l.target_id = cc.comment_id
				) sub
				WHERE c.comment_id = sub.comment_id AND c.like_count <> sub.n
			`,
			counter: &stats.CommentLikeCounts,
		},
		{
			name: "post comment counts",
			query: `
				UPDATE posts p SET comment_count = sub.n
				FROM (
					SELECT pp.post_id, COALESCE(c.n, 0) AS n
					FROM posts pp
					LEFT JOIN (
						SELECT post_id, COUNT(*) AS n FROM comments GROUP BY post_id
					) c ON c.post_id = pp.post_id
				) sub
				WHERE p.post_id = sub.post_id AND p.comment_count <> sub.n
			`,
			counter: &stats.PostCommentCounts,
		},
		{
			name: "collection item counts",
			query: `
				UPDATE collections col SET item_count = sub.n, updated_at = NOW()
				FROM (
					SELECT c.collection_id, COALESCE(p.n, 0) AS n
					FROM collections c
					LEFT JOIN (
						SELECT collection_id, COUNT(*) AS n FROM posts
						WHERE collection_id IS NOT NULL GROUP BY collection_id
					) p ON p.collection_id = c.collection_id
				) sub
				WHERE col.collection_id = sub.collection_id AND col.item_count <> sub.n
			`,
			counter: &stats.CollectionItems,
		},
		{
			name: "user follow counts",
			query: `
				UPDATE users u SET follower_count = sub.followers, following_count = sub.following, updated_at = NOW()
				FROM (
					SELECT uu.user_id,
						COALESCE(fr.n, 0) AS followers,
						COALESCE(fg.n, 0) AS following
					FROM users uu
					LEFT JOIN (
						SELECT followee_id, COUNT(*) AS n FROM follows GROUP BY followee_id
					) fr ON fr.followee_id = uu.user_id
					LEFT JOIN (
						SELECT follower_id, COUNT(*) AS n FROM follows GROUP BY follower_id
					) fg ON fg.follower_id = uu.user_id
				) sub
				WHERE u.user_id = sub.user_id
				  AND (u.follower_count <> sub.followers OR u.following_count <> sub.following)
			`,
			counter: &stats.UserFollowCounts,
		},
	}

	for _, p := range passes {
		tag, err := r.db.Exec(ctx, p.query)
		if err != nil {
			return stats, apperr.Wrap(apperr.KindUnavailable, "reconciliation pass failed", err)
		}
		*p.counter = tag.RowsAffected()
		if tag.RowsAffected() > 0 {
			r.logger.Info("reconciled drifted counters", "pass", p.name, "rows", tag.RowsAffected())
		}
	}

	return stats, nil
}
