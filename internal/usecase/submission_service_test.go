package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/rankstore"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/repository/memory"
	"github.com/rhythmnet/rhythmd/internal/platform/id"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

type stubModerator struct {
	mu         sync.Mutex
	restricted []int64
}

func (m *stubModerator) Restrict(_ context.Context, userID int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restricted = append(m.restricted, userID)
	return nil
}

func (m *stubModerator) restrictedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.restricted...)
}

// perfFromScore rates ten thousand points of score as one pp, which keeps
// pipeline expectations arithmetic.
type perfFromScore struct{}

func (perfFromScore) Calculate(s score.Score, _ beatmap.Beatmap) float64 {
	if !s.Passed {
		return 0
	}
	return float64(s.TotalScore) / 10_000
}

type submissionHarness struct {
	svc       *SubmissionService
	scores    *memory.ScoreRepository
	stats     *memory.StatsRepository
	users     *memory.UserRepository
	beatmaps  *memory.BeatmapRepository
	moderator *stubModerator
	flags     *RuntimeFlags
}

func newSubmissionHarness(t *testing.T) *submissionHarness {
	t.Helper()

	statsRepo := memory.NewStatsRepository()
	scoreRepo := memory.NewScoreRepository(statsRepo)
	users := memory.NewUserRepository()
	beatmaps := memory.NewBeatmapRepository()
	moderator := &stubModerator{}
	flags := NewRuntimeFlags(false)

	tracker, err := NewRankTracker(rankstore.NewMemory(), statsRepo, logging.NewNop())
	require.NoError(t, err)

	svc, err := NewSubmissionService(SubmissionConfig{
		Scores:    scoreRepo,
		Stats:     statsRepo,
		Users:     users,
		Beatmaps:  beatmaps,
		Ranks:     tracker,
		Moderator: moderator,
		Perf:      perfFromScore{},
		IDs:       id.NewRandomGenerator(),
		Flags:     flags,
		Logger:    logging.NewNop(),
		PPCeiling: 2000,
	})
	require.NoError(t, err)

	users.Put(user.User{ID: 1, Name: "player1", Country: "KR"})
	users.Put(user.User{ID: 2, Name: "player2", Country: "DE"})
	beatmaps.Put(beatmap.Beatmap{
		Hash:       "maphash",
		ID:         42,
		Artist:     "artist",
		Title:      "title",
		Version:    "insane",
		Status:     beatmap.StatusRanked,
		StarRating: 5,
		MaxCombo:   1200,
	})

	return &submissionHarness{
		svc:       svc,
		scores:    scoreRepo,
		stats:     statsRepo,
		users:     users,
		beatmaps:  beatmaps,
		moderator: moderator,
		flags:     flags,
	}
}

func (h *submissionHarness) input(userID, total int64, endSec int) SubmitInput {
	in := SubmitInput{
		UserID:      userID,
		BeatmapHash: "maphash",
		Mode:        score.ModeStandard,
		TotalScore:  total,
		Accuracy:    98.5,
		MaxCombo:    900,
		Count300:    500,
		Count100:    10,
		Passed:      true,
		SessionID:   "sess-1",
		Replay:      []byte("replay bytes"),
		StartedAt:   playAt(0),
		EndedAt:     playAt(endSec),
	}
	in.SessionChecksum = expectSessionChecksum(in)
	return in
}

func TestSubmitFirstScore(t *testing.T) {
	h := newSubmissionHarness(t)

	res, err := h.svc.Submit(context.Background(), h.input(1, 1_000_000, 90))
	require.NoError(t, err)

	assert.Equal(t, score.StatusBest, res.Status)
	assert.NotZero(t, res.ScoreID)
	assert.InDelta(t, 100, res.PP, 1e-9)

	assert.Equal(t, int64(1_000_000), res.Overall.TotalScoreAfter)
	assert.Equal(t, int64(1_000_000), res.Overall.RankedScoreAfter)
	assert.InDelta(t, 100, res.Overall.PPAfter, 1e-9)
	assert.InDelta(t, 98.5, res.Overall.AccuracyAfter, 1e-9)
	assert.Equal(t, int64(1), res.Overall.RankAfter)

	assert.Equal(t, int64(0), res.Beatmap.RankBefore)
	assert.Equal(t, int64(1), res.Beatmap.RankAfter)
	assert.Equal(t, int64(1_000_000), res.Beatmap.TotalScoreAfter)

	names := make([]string, 0, len(res.Unlocked))
	for _, m := range res.Unlocked {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "Millionaire")
	assert.Contains(t, names, "Combo 500")

	stored, ok, err := h.scores.GetByID(context.Background(), res.ScoreID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, score.StatusBest, stored.Status)
	assert.NotNil(t, stored.ReplayRef)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	h := newSubmissionHarness(t)
	in := h.input(1, 700_000, 90)

	_, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)

	_, err = h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSubmitImprovedScoreDemotesPreviousBest(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, h.input(1, 600_000, 90))
	require.NoError(t, err)

	res, err := h.svc.Submit(ctx, h.input(1, 900_000, 300))
	require.NoError(t, err)

	assert.Equal(t, score.StatusBest, res.Status)
	assert.Equal(t, int64(600_000), res.Beatmap.TotalScoreBefore)
	assert.Equal(t, int64(900_000), res.Beatmap.TotalScoreAfter)

	// Ranked score moves by the improvement, total score by the full play.
	assert.Equal(t, int64(600_000), res.Overall.RankedScoreBefore)
	assert.Equal(t, int64(900_000), res.Overall.RankedScoreAfter)
	assert.Equal(t, int64(1_500_000), res.Overall.TotalScoreAfter)

	prev, ok, err := h.scores.GetByID(ctx, first.ScoreID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, score.StatusSubmitted, prev.Status)
}

func TestSubmitLowerScoreKeepsBest(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	best, err := h.svc.Submit(ctx, h.input(1, 900_000, 90))
	require.NoError(t, err)

	res, err := h.svc.Submit(ctx, h.input(1, 500_000, 300))
	require.NoError(t, err)

	assert.Equal(t, score.StatusSubmitted, res.Status)
	assert.Equal(t, int64(900_000), res.Beatmap.TotalScoreAfter, "chart keeps the standing best")
	assert.Equal(t, res.Overall.RankedScoreBefore, res.Overall.RankedScoreAfter)
	assert.Empty(t, res.Unlocked)

	kept, ok, err := h.scores.GetByID(ctx, best.ScoreID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, score.StatusBest, kept.Status)
}

func TestSubmitModGroupsTrackSeparateBests(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.input(1, 900_000, 90))
	require.NoError(t, err)

	in := h.input(1, 600_000, 300)
	in.Mods = score.ModHidden
	in.SessionChecksum = expectSessionChecksum(in)

	res, err := h.svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, score.StatusBest, res.Status, "a different mod set starts its own group")
}

func TestSubmitFailedScore(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	in := h.input(1, 200_000, 90)
	in.Passed = false
	in.Replay = nil
	in.FailedAtMs = 45_000
	in.SessionChecksum = expectSessionChecksum(in)

	res, err := h.svc.Submit(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, score.StatusFailed, res.Status)
	assert.Zero(t, res.Overall.RankedScoreAfter)
	assert.Equal(t, int64(200_000), res.Overall.TotalScoreAfter)
	assert.False(t, res.FirstPlace)
	assert.Empty(t, res.Unlocked)

	row, ok, err := h.stats.GetByUserMode(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, row.PlayCount)
	assert.Equal(t, 45*time.Second, row.PlayTime, "failed play credits partial play time")
}

func TestSubmitMaintenanceGate(t *testing.T) {
	h := newSubmissionHarness(t)
	h.flags.SetMaintenance(true)

	_, err := h.svc.Submit(context.Background(), h.input(1, 700_000, 90))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaintenance)
}

func TestSubmitIllegalModsRejectedWithoutRestriction(t *testing.T) {
	h := newSubmissionHarness(t)

	in := h.input(1, 700_000, 90)
	in.Mods = score.ModAuto
	in.SessionChecksum = expectSessionChecksum(in)

	_, err := h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleViolation)
	assert.Empty(t, h.moderator.restrictedIDs())
}

func TestSubmitAboveCeilingRestricts(t *testing.T) {
	h := newSubmissionHarness(t)

	_, err := h.svc.Submit(context.Background(), h.input(1, 50_000_000, 90))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleViolation)
	assert.Equal(t, []int64{1}, h.moderator.restrictedIDs())
}

func TestSubmitCeilingSkippedForAlternateScoring(t *testing.T) {
	h := newSubmissionHarness(t)

	in := h.input(1, 50_000_000, 90)
	in.Mods = score.ModRelax
	in.SessionChecksum = expectSessionChecksum(in)

	_, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, h.moderator.restrictedIDs())
}

func TestSubmitIntegrityMismatchRestricts(t *testing.T) {
	h := newSubmissionHarness(t)

	in := h.input(1, 700_000, 90)
	in.SessionChecksum = "deadbeefdeadbeefdeadbeefdeadbeef"

	_, err := h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleViolation)
	assert.Equal(t, []int64{1}, h.moderator.restrictedIDs())
}

func TestSubmitPassedWithoutReplayRejected(t *testing.T) {
	h := newSubmissionHarness(t)

	in := h.input(1, 700_000, 90)
	in.Replay = nil

	_, err := h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitNoFailPassWithoutReplayAccepted(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	in := h.input(1, 700_000, 90)
	in.Replay = nil
	in.Mods = score.ModNoFail
	in.SessionChecksum = expectSessionChecksum(in)

	res, err := h.svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, score.StatusBest, res.Status)

	stored, ok, err := h.scores.GetByID(ctx, res.ScoreID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, stored.ReplayRef)

	// Relax cannot fail either, so the same exemption applies.
	in = h.input(1, 600_000, 300)
	in.Replay = nil
	in.Mods = score.ModRelax
	in.SessionChecksum = expectSessionChecksum(in)

	_, err = h.svc.Submit(ctx, in)
	require.NoError(t, err)
}

func TestSubmitConcurrentSameGroupKeepsSingleBest(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	inputs := []SubmitInput{h.input(1, 600_000, 90), h.input(1, 900_000, 300)}

	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.Submit(ctx, in)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	recorded, err := h.scores.ListByUserBeatmap(ctx, 1, "maphash", score.ModeStandard)
	require.NoError(t, err)
	require.Len(t, recorded, 2)

	var bests []score.Score
	for _, s := range recorded {
		if s.Status == score.StatusBest {
			bests = append(bests, s)
		}
	}
	require.Len(t, bests, 1, "exactly one score in the group may hold best status")
	assert.Equal(t, int64(900_000), bests[0].TotalScore)
}

func TestSubmitUnknownUserAndBeatmap(t *testing.T) {
	h := newSubmissionHarness(t)

	in := h.input(99, 700_000, 90)
	_, err := h.svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotFound)

	in = h.input(1, 700_000, 90)
	in.BeatmapHash = "unknown"
	in.SessionChecksum = expectSessionChecksum(in)
	_, err = h.svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitUnscoreableBeatmapRejected(t *testing.T) {
	h := newSubmissionHarness(t)
	h.beatmaps.Put(beatmap.Beatmap{Hash: "graveyard", Status: beatmap.StatusGraveyard})

	in := h.input(1, 700_000, 90)
	in.BeatmapHash = "graveyard"
	in.SessionChecksum = expectSessionChecksum(in)

	_, err := h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitLovedMapAwardsNoRankedScore(t *testing.T) {
	h := newSubmissionHarness(t)
	h.beatmaps.Put(beatmap.Beatmap{Hash: "loved", Status: beatmap.StatusLoved, StarRating: 4, MaxCombo: 800})

	in := h.input(1, 800_000, 90)
	in.BeatmapHash = "loved"
	in.SessionChecksum = expectSessionChecksum(in)

	res, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, score.StatusBest, res.Status)
	assert.Zero(t, res.Overall.RankedScoreAfter)
	assert.Equal(t, int64(800_000), res.Overall.TotalScoreAfter)
}

func TestSubmitFirstPlaceTakeover(t *testing.T) {
	h := newSubmissionHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.input(1, 600_000, 90))
	require.NoError(t, err)

	res, err := h.svc.Submit(ctx, h.input(2, 900_000, 300))
	require.NoError(t, err)
	assert.True(t, res.FirstPlace)

	res, err = h.svc.Submit(ctx, h.input(1, 700_000, 500))
	require.NoError(t, err)
	assert.False(t, res.FirstPlace, "improving to second place is not a takeover")
}

func TestSubmitValidation(t *testing.T) {
	h := newSubmissionHarness(t)

	cases := map[string]func(*SubmitInput){
		"zero user":          func(in *SubmitInput) { in.UserID = 0 },
		"empty beatmap hash": func(in *SubmitInput) { in.BeatmapHash = "" },
		"bad mode":           func(in *SubmitInput) { in.Mode = 9 },
		"negative total":     func(in *SubmitInput) { in.TotalScore = -1 },
		"negative counts":    func(in *SubmitInput) { in.CountMiss = -1 },
		"accuracy over 100":  func(in *SubmitInput) { in.Accuracy = 101 },
		"missing session":    func(in *SubmitInput) { in.SessionID = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := h.input(1, 700_000, 90)
			mutate(&in)
			_, err := h.svc.Submit(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}
