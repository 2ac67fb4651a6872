package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
)

func playAt(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func passedScore(id, userID int64, mods score.Mods, total int64, at time.Time) score.Score {
	return score.Score{
		ID:         id,
		UserID:     userID,
		Mods:       mods,
		TotalScore: total,
		Passed:     true,
		Status:     score.StatusSubmitted,
		PlayedAt:   at,
	}
}

func TestBestInGroupPicksHighestTotal(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 7, 0, 500_000, playAt(0)),
		passedScore(2, 7, 0, 900_000, playAt(10)),
		passedScore(3, 7, 0, 700_000, playAt(20)),
	}

	best, ok := BestInGroup(scores, 7, 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)
}

func TestBestInGroupSeparatesModGroups(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 7, 0, 900_000, playAt(0)),
		passedScore(2, 7, score.ModHidden, 400_000, playAt(10)),
	}

	best, ok := BestInGroup(scores, 7, score.ModHidden)
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)

	_, ok = BestInGroup(scores, 7, score.ModHardRock)
	assert.False(t, ok)
}

func TestBestInGroupTieGoesToEarlierPlay(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 7, 0, 800_000, playAt(30)),
		passedScore(2, 7, 0, 800_000, playAt(5)),
	}

	best, ok := BestInGroup(scores, 7, 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)
}

func TestBestInGroupIgnoresFailedScores(t *testing.T) {
	failed := passedScore(1, 7, 0, 999_999, playAt(0))
	failed.Passed = false
	failed.Status = score.StatusFailed

	scores := []score.Score{
		failed,
		passedScore(2, 7, 0, 100_000, playAt(10)),
	}

	best, ok := BestInGroup(scores, 7, 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)
}

func TestLeaderboardOnePerUserBestOfAllMods(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 1, 0, 600_000, playAt(0)),
		passedScore(2, 1, score.ModHidden, 800_000, playAt(5)),
		passedScore(3, 2, 0, 700_000, playAt(10)),
		passedScore(4, 3, 0, 900_000, playAt(15)),
	}

	board := Leaderboard(scores)
	require.Len(t, board, 3)
	assert.Equal(t, int64(3), board[0].UserID)
	assert.Equal(t, int64(1), board[1].UserID)
	assert.Equal(t, int64(2), board[1].ID, "user 1 is represented by the hidden score")
	assert.Equal(t, int64(2), board[2].UserID)
}

func TestLeaderboardPosition(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 1, 0, 600_000, playAt(0)),
		passedScore(2, 2, 0, 700_000, playAt(5)),
	}

	assert.Equal(t, 1, LeaderboardPosition(scores, 2))
	assert.Equal(t, 2, LeaderboardPosition(scores, 1))
	assert.Equal(t, 0, LeaderboardPosition(scores, 99))
}

func TestGroupBestsOnePerGroup(t *testing.T) {
	scores := []score.Score{
		passedScore(1, 1, 0, 600_000, playAt(0)),
		passedScore(2, 1, 0, 650_000, playAt(5)),
		passedScore(3, 1, score.ModHidden, 500_000, playAt(10)),
		passedScore(4, 2, 0, 700_000, playAt(15)),
	}

	bests := GroupBests(scores)
	require.Len(t, bests, 3)
	assert.Equal(t, int64(4), bests[0].ID)
	assert.Equal(t, int64(2), bests[1].ID)
	assert.Equal(t, int64(3), bests[2].ID)
}

func TestWeightedAggregatesDecay(t *testing.T) {
	bests := []score.Score{
		{BeatmapHash: "a", PP: 100, Accuracy: 100, Passed: true},
		{BeatmapHash: "b", PP: 50, Accuracy: 90, Passed: true},
	}

	pp, acc := WeightedAggregates(bests)
	assert.InDelta(t, 100+50*0.95, pp, 1e-9)
	assert.InDelta(t, (100+90*0.95)/(1+0.95), acc, 1e-9)
}

func TestWeightedAggregatesOneScorePerBeatmap(t *testing.T) {
	bests := []score.Score{
		{BeatmapHash: "a", Mods: 0, PP: 100, Accuracy: 95},
		{BeatmapHash: "a", Mods: score.ModHidden, PP: 120, Accuracy: 97},
	}

	pp, acc := WeightedAggregates(bests)
	assert.InDelta(t, 120, pp, 1e-9)
	assert.InDelta(t, 97, acc, 1e-9)
}

func TestWeightedAggregatesEmpty(t *testing.T) {
	pp, acc := WeightedAggregates(nil)
	assert.Zero(t, pp)
	assert.Zero(t, acc)
}
