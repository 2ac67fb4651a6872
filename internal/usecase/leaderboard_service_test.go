package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/repository/memory"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

func newLeaderboardHarness(t *testing.T) (*LeaderboardService, *memory.ScoreRepository, *memory.UserRepository, *memory.BeatmapRepository) {
	t.Helper()

	scoreRepo := memory.NewScoreRepository(memory.NewStatsRepository())
	users := memory.NewUserRepository()
	beatmaps := memory.NewBeatmapRepository()

	svc, err := NewLeaderboardService(scoreRepo, users, beatmaps, logging.NewNop())
	require.NoError(t, err)

	beatmaps.Put(beatmap.Beatmap{Hash: "maphash", ID: 42, Status: beatmap.StatusRanked})
	for i := int64(1); i <= 3; i++ {
		users.Put(user.User{ID: i, Name: string(rune('a' + i - 1)), Country: "US"})
	}

	return svc, scoreRepo, users, beatmaps
}

func insertScore(t *testing.T, repo *memory.ScoreRepository, s score.Score) {
	t.Helper()

	if s.BeatmapHash == "" {
		s.BeatmapHash = "maphash"
	}
	_, err := repo.InsertWithStatistics(context.Background(), s, stats.UserStatistics{UserID: s.UserID}, nil)
	require.NoError(t, err)
}

func TestGetBeatmapLeaderboardOrdersAndHydrates(t *testing.T) {
	svc, scoreRepo, _, _ := newLeaderboardHarness(t)

	insertScore(t, scoreRepo, passedScore(0, 1, 0, 600_000, playAt(0)))
	insertScore(t, scoreRepo, passedScore(0, 2, 0, 900_000, playAt(5)))
	insertScore(t, scoreRepo, passedScore(0, 3, 0, 700_000, playAt(10)))

	page, err := svc.GetBeatmapLeaderboard(context.Background(), "maphash", score.ModeStandard, nil, 50, 0)
	require.NoError(t, err)

	require.Len(t, page.Entries, 3)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, int64(2), page.Entries[0].UserID)
	assert.Equal(t, 1, page.Entries[0].Position)
	assert.Equal(t, "b", page.Entries[0].UserName)
	assert.Equal(t, int64(3), page.Entries[1].UserID)
	assert.Equal(t, int64(1), page.Entries[2].UserID)
}

func TestGetBeatmapLeaderboardFiltersRestrictedUsers(t *testing.T) {
	svc, scoreRepo, users, _ := newLeaderboardHarness(t)
	users.Put(user.User{ID: 2, Name: "b", Country: "US", Restricted: true})

	insertScore(t, scoreRepo, passedScore(0, 1, 0, 600_000, playAt(0)))
	insertScore(t, scoreRepo, passedScore(0, 2, 0, 900_000, playAt(5)))

	page, err := svc.GetBeatmapLeaderboard(context.Background(), "maphash", score.ModeStandard, nil, 50, 0)
	require.NoError(t, err)

	require.Len(t, page.Entries, 1)
	assert.Equal(t, int64(1), page.Entries[0].UserID)
	assert.Equal(t, 1, page.Entries[0].Position)
}

func TestGetBeatmapLeaderboardModsFilter(t *testing.T) {
	svc, scoreRepo, _, _ := newLeaderboardHarness(t)

	insertScore(t, scoreRepo, passedScore(0, 1, 0, 900_000, playAt(0)))
	hidden := passedScore(0, 2, score.ModHidden, 500_000, playAt(5))
	insertScore(t, scoreRepo, hidden)

	mods := score.ModHidden
	page, err := svc.GetBeatmapLeaderboard(context.Background(), "maphash", score.ModeStandard, &mods, 50, 0)
	require.NoError(t, err)

	require.Len(t, page.Entries, 1)
	assert.Equal(t, int64(2), page.Entries[0].UserID)
}

func TestGetBeatmapLeaderboardRequesterOutsidePage(t *testing.T) {
	svc, scoreRepo, _, _ := newLeaderboardHarness(t)

	insertScore(t, scoreRepo, passedScore(0, 1, 0, 900_000, playAt(0)))
	insertScore(t, scoreRepo, passedScore(0, 2, 0, 800_000, playAt(5)))
	insertScore(t, scoreRepo, passedScore(0, 3, 0, 700_000, playAt(10)))

	page, err := svc.GetBeatmapLeaderboard(context.Background(), "maphash", score.ModeStandard, nil, 2, 3)
	require.NoError(t, err)

	require.Len(t, page.Entries, 2)
	assert.Equal(t, 3, page.Total)
	require.NotNil(t, page.Requester)
	assert.Equal(t, int64(3), page.Requester.UserID)
	assert.Equal(t, 3, page.Requester.Position)
}

func TestGetBeatmapLeaderboardUnknownMap(t *testing.T) {
	svc, _, _, _ := newLeaderboardHarness(t)

	_, err := svc.GetBeatmapLeaderboard(context.Background(), "nope", score.ModeStandard, nil, 50, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
