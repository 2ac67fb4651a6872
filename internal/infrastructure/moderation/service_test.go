package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/rankstore"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/repository/memory"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

type moderationHarness struct {
	svc     *Service
	users   *memory.UserRepository
	stats   *memory.StatsRepository
	scores  *memory.ScoreRepository
	tracker *usecase.RankTracker
}

func newModerationHarness(t *testing.T) *moderationHarness {
	t.Helper()

	statsRepo := memory.NewStatsRepository()
	scores := memory.NewScoreRepository(statsRepo)
	users := memory.NewUserRepository()
	beatmaps := memory.NewBeatmapRepository()

	beatmaps.Put(beatmap.Beatmap{
		Hash: "maphash", ID: 42, Status: beatmap.StatusRanked, StarRating: 5, MaxCombo: 1200,
	})

	tracker, err := usecase.NewRankTracker(rankstore.NewMemory(), statsRepo, logging.NewNop())
	require.NoError(t, err)

	svc, err := NewService(users, statsRepo, scores, beatmaps, tracker, logging.NewNop())
	require.NoError(t, err)

	return &moderationHarness{svc: svc, users: users, stats: statsRepo, scores: scores, tracker: tracker}
}

func (h *moderationHarness) seedPlayer(t *testing.T, u user.User, pp float64) {
	t.Helper()

	ctx := context.Background()
	h.users.Put(u)
	st := stats.UserStatistics{UserID: u.ID, Mode: 0, PP: pp}
	require.NoError(t, h.stats.Upsert(ctx, st))
	require.NoError(t, h.tracker.UpsertScore(ctx, st, u))
}

func TestRestrictHidesUserFromLeaderboard(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	u1 := user.User{ID: 1, Name: "cheater", Country: "US"}
	u2 := user.User{ID: 2, Name: "honest", Country: "US"}
	h.seedPlayer(t, u1, 300)
	h.seedPlayer(t, u2, 200)

	global, _ := h.tracker.GetRanks(ctx, u2, 0)
	require.EqualValues(t, 2, global)

	require.NoError(t, h.svc.Restrict(ctx, u1.ID, "pp ceiling exceeded"))

	stored, ok, err := h.users.GetByID(ctx, u1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Restricted)

	global, _ = h.tracker.GetRanks(ctx, u2, 0)
	assert.EqualValues(t, 1, global)

	// Repeat restriction is a no-op.
	require.NoError(t, h.svc.Restrict(ctx, u1.ID, "again"))
}

func TestUnrestrictRestoresLeaderboardEntry(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	u1 := user.User{ID: 1, Name: "appealed", Country: "US"}
	u2 := user.User{ID: 2, Name: "honest", Country: "US"}
	h.seedPlayer(t, u1, 300)
	h.seedPlayer(t, u2, 200)

	require.NoError(t, h.svc.Restrict(ctx, u1.ID, "flagged"))
	require.NoError(t, h.svc.Unrestrict(ctx, u1.ID))

	global, _ := h.tracker.GetRanks(ctx, u2, 0)
	assert.EqualValues(t, 2, global)
}

func TestRestrictUnknownUser(t *testing.T) {
	h := newModerationHarness(t)

	err := h.svc.Restrict(context.Background(), 99, "ghost")
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestRemoveScorePromotesRunnerUp(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	u := user.User{ID: 1, Name: "player", Country: "US"}
	h.users.Put(u)

	playedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	best := score.Score{
		UserID: 1, BeatmapHash: "maphash", Mode: score.ModeStandard,
		TotalScore: 1000, PP: 100, Accuracy: 99, Passed: true,
		Status: score.StatusBest, PlayedAt: playedAt, Checksum: "c1",
	}
	runnerUp := score.Score{
		UserID: 1, BeatmapHash: "maphash", Mode: score.ModeStandard,
		TotalScore: 800, PP: 80, Accuracy: 97, Passed: true,
		Status: score.StatusSubmitted, PlayedAt: playedAt.Add(time.Minute), Checksum: "c2",
	}

	bestID, err := h.scores.InsertWithStatistics(ctx, best,
		stats.UserStatistics{UserID: 1, Mode: 0, RankedScore: 1000, TotalScore: 1000, PP: 100, Accuracy: 99}, nil)
	require.NoError(t, err)
	runnerUpID, err := h.scores.InsertWithStatistics(ctx, runnerUp,
		stats.UserStatistics{UserID: 1, Mode: 0, RankedScore: 1000, TotalScore: 1800, PP: 100, Accuracy: 99}, nil)
	require.NoError(t, err)

	require.NoError(t, h.svc.RemoveScore(ctx, bestID))

	_, ok, err := h.scores.GetByID(ctx, bestID)
	require.NoError(t, err)
	assert.False(t, ok, "removed score must be gone")

	promoted, ok, err := h.scores.GetByID(ctx, runnerUpID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, score.StatusBest, promoted.Status)

	st, ok, err := h.stats.GetByUserMode(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 80, st.PP, 1e-9)
	assert.InDelta(t, 97, st.Accuracy, 1e-9)
	assert.EqualValues(t, 800, st.RankedScore)
}

func TestRemoveScoreWithoutRunnerUp(t *testing.T) {
	h := newModerationHarness(t)
	ctx := context.Background()

	u := user.User{ID: 1, Name: "player", Country: "US"}
	h.users.Put(u)

	only := score.Score{
		UserID: 1, BeatmapHash: "maphash", Mode: score.ModeStandard,
		TotalScore: 1000, PP: 100, Accuracy: 99, Passed: true,
		Status: score.StatusBest, PlayedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Checksum: "c1",
	}
	id, err := h.scores.InsertWithStatistics(ctx, only,
		stats.UserStatistics{UserID: 1, Mode: 0, RankedScore: 1000, TotalScore: 1000, PP: 100, Accuracy: 99}, nil)
	require.NoError(t, err)

	require.NoError(t, h.svc.RemoveScore(ctx, id))

	st, ok, err := h.stats.GetByUserMode(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, st.PP)
	assert.Zero(t, st.RankedScore)
}

func TestRemoveScoreUnknown(t *testing.T) {
	h := newModerationHarness(t)

	err := h.svc.RemoveScore(context.Background(), 404)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}
