package score

import (
	"context"

	"github.com/rhythmnet/rhythmd/internal/domain/stats"
)

// StatusChange demotes a previously-best score when a newer one supersedes it.
type StatusChange struct {
	ScoreID int64
	To      Status
}

type Repository interface {
	GetByChecksum(ctx context.Context, checksum string) (Score, bool, error)
	GetByID(ctx context.Context, id int64) (Score, bool, error)
	ListByBeatmap(ctx context.Context, beatmapHash string, mode Mode) ([]Score, error)
	ListByUserBeatmap(ctx context.Context, userID int64, beatmapHash string, mode Mode) ([]Score, error)
	// ListBestsByUser returns the user's StatusBest scores for a mode,
	// used to recompute the weighted aggregate statistics.
	ListBestsByUser(ctx context.Context, userID int64, mode Mode) ([]Score, error)

	// InsertWithStatistics persists the score, applies the optional demotion of
	// the superseded score, and upserts the statistics row in one commit unit.
	InsertWithStatistics(ctx context.Context, s Score, st stats.UserStatistics, demote *StatusChange) (int64, error)

	// UpdateStatus reclassifies a score, used when moderation removes a best
	// and the runner-up takes its place.
	UpdateStatus(ctx context.Context, id int64, status Status) error

	SoftDelete(ctx context.Context, id int64) error
}
