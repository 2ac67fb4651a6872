package usecase

import (
	"context"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/medal"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
)

// RankRefresher is the rank-tracking surface the submission pipeline needs.
// Satisfied by RankTracker; narrowed to an interface so pipeline tests can
// observe cascade calls without an ordered-set store.
type RankRefresher interface {
	GetRanks(ctx context.Context, u user.User, mode uint8) (int64, int64)
	UpsertScore(ctx context.Context, st stats.UserStatistics, u user.User) error
	RemoveScore(ctx context.Context, st stats.UserStatistics, u user.User) error
}

// BeatmapSource resolves beatmap metadata by content hash. The production
// implementation caches mirror lookups; the pipeline does not care.
type BeatmapSource interface {
	GetByHash(ctx context.Context, hash string) (beatmap.Beatmap, bool, error)
}

// Moderator applies account restrictions triggered by anti-cheat gates.
type Moderator interface {
	Restrict(ctx context.Context, userID int64, reason string) error
}

// FirstPlace describes a leaderboard takeover for announcement purposes.
type FirstPlace struct {
	UserID       int64
	UserName     string
	BeatmapHash  string
	BeatmapTitle string
	Mode         uint8
	TotalScore   int64
	DethronedID  int64
}

// Notifier publishes submission side events. Failures are logged, never
// surfaced to the submitting client.
type Notifier interface {
	AnnounceFirstPlace(ctx context.Context, fp FirstPlace) error
	AnnounceMedals(ctx context.Context, userID int64, unlocked []medal.Medal) error
}
