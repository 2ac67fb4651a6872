package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/medal"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/platform/id"
	"github.com/rhythmnet/rhythmd/internal/platform/keymutex"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

// aggregateDecay is the per-position weight applied to a user's bests when
// recomputing overall performance and accuracy.
const aggregateDecay = 0.95

// maxPlayTime caps the play time credited to a single submission.
const maxPlayTime = 24 * time.Hour

// SubmitInput is a fully decoded submission request.
type SubmitInput struct {
	UserID      int64
	BeatmapHash string
	Mode        score.Mode
	Mods        score.Mods

	TotalScore int64
	Accuracy   float64
	MaxCombo   int
	Count300   int
	Count100   int
	Count50    int
	CountGeki  int
	CountKatu  int
	CountMiss  int
	Passed     bool
	Perfect    bool

	// SessionID and SessionChecksum bind the payload to the play session the
	// client opened; the checksum is recomputed server-side.
	SessionID       string
	SessionChecksum string

	Replay    []byte
	StartedAt time.Time
	EndedAt   time.Time
	// FailedAtMs is the map position of a mid-play failure, used to credit
	// partial play time on unpassed submissions.
	FailedAtMs int
}

// Delta is one before/after chart in the submission response.
type Delta struct {
	RankBefore        int64
	RankAfter         int64
	RankedScoreBefore int64
	RankedScoreAfter  int64
	TotalScoreBefore  int64
	TotalScoreAfter   int64
	MaxComboBefore    int
	MaxComboAfter     int
	AccuracyBefore    float64
	AccuracyAfter     float64
	PPBefore          float64
	PPAfter           float64
}

// SubmissionResult is everything the client renders after a submission.
type SubmissionResult struct {
	ScoreID    int64
	Status     score.Status
	PP         float64
	Beatmap    Delta
	Overall    Delta
	FirstPlace bool
	Unlocked   []medal.Medal
}

// SubmissionConfig carries the dependencies of the submission pipeline.
type SubmissionConfig struct {
	Scores    score.Repository
	Stats     stats.Repository
	Users     user.Repository
	Beatmaps  BeatmapSource
	Ranks     RankRefresher
	Moderator Moderator
	Notifier  Notifier
	Perf      PerformanceCalculator
	IDs       id.Generator
	Medals    []medal.Medal
	Flags     *RuntimeFlags
	Logger    *logging.Logger
	PPCeiling float64
}

// SubmissionService runs the score-submission pipeline: gate, judge, merge
// statistics, persist atomically, then refresh leaderboards.
type SubmissionService struct {
	scores    score.Repository
	stats     stats.Repository
	users     user.Repository
	beatmaps  BeatmapSource
	ranks     RankRefresher
	moderator Moderator
	notifier  Notifier
	perf      PerformanceCalculator
	ids       id.Generator
	medals    []medal.Medal
	flags     *RuntimeFlags
	logger    *logging.Logger
	ppCeiling float64

	// locks serializes the decide-and-persist window per
	// (user, beatmap, mode), so two racing submissions cannot both
	// conclude they are the group's best.
	locks *keymutex.KeyMutex
	now   func() time.Time
}

func NewSubmissionService(cfg SubmissionConfig) (*SubmissionService, error) {
	switch {
	case cfg.Scores == nil:
		return nil, fmt.Errorf("score repository is required")
	case cfg.Stats == nil:
		return nil, fmt.Errorf("statistics repository is required")
	case cfg.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case cfg.Beatmaps == nil:
		return nil, fmt.Errorf("beatmap source is required")
	case cfg.Ranks == nil:
		return nil, fmt.Errorf("rank refresher is required")
	case cfg.Moderator == nil:
		return nil, fmt.Errorf("moderator is required")
	case cfg.Perf == nil:
		return nil, fmt.Errorf("performance calculator is required")
	case cfg.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	medals := cfg.Medals
	if medals == nil {
		medals = medal.DefaultSet()
	}
	flags := cfg.Flags
	if flags == nil {
		flags = NewRuntimeFlags(false)
	}

	return &SubmissionService{
		scores:    cfg.Scores,
		stats:     cfg.Stats,
		users:     cfg.Users,
		beatmaps:  cfg.Beatmaps,
		ranks:     cfg.Ranks,
		moderator: cfg.Moderator,
		notifier:  cfg.Notifier,
		perf:      cfg.Perf,
		ids:       cfg.IDs,
		medals:    medals,
		flags:     flags,
		logger:    logger,
		ppCeiling: cfg.PPCeiling,
		locks:     keymutex.New(),
		now:       time.Now,
	}, nil
}

// Submit runs the full pipeline for one score. Rejections surface as wrapped
// taxonomy sentinels; a nil error means the score and its statistics are
// committed and the leaderboards reflect them.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (SubmissionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "SubmissionService.Submit")
	defer span.End()

	var zero SubmissionResult

	if s.flags.Maintenance() {
		return zero, fmt.Errorf("%w: submissions are paused", ErrMaintenance)
	}

	if err := validateInput(in); err != nil {
		return zero, err
	}

	u, ok, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return zero, fmt.Errorf("%w: load user: %w", ErrTransientStore, err)
	}
	if !ok {
		return zero, fmt.Errorf("%w: user %d", ErrNotFound, in.UserID)
	}

	bm, ok, err := s.beatmaps.GetByHash(ctx, in.BeatmapHash)
	if err != nil {
		return zero, fmt.Errorf("%w: load beatmap: %w", ErrTransientStore, err)
	}
	if !ok {
		return zero, fmt.Errorf("%w: unknown beatmap %s", ErrInvalidRequest, in.BeatmapHash)
	}
	if !bm.Scoreable() {
		return zero, fmt.Errorf("%w: beatmap %s is not scoreable", ErrInvalidRequest, in.BeatmapHash)
	}

	candidate := buildScore(in, s.now)
	checksum := candidate.Fingerprint()

	if _, exists, err := s.scores.GetByChecksum(ctx, checksum); err != nil {
		return zero, fmt.Errorf("%w: duplicate lookup: %w", ErrTransientStore, err)
	} else if exists {
		return zero, fmt.Errorf("%w: checksum %s already recorded", ErrDuplicate, checksum)
	}

	if err := in.Mods.Validate(in.Mode); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrRuleViolation, err)
	}

	candidate.PP = s.perf.Calculate(candidate, bm)

	if s.ppCeiling > 0 && candidate.PP > s.ppCeiling && !in.Mods.AlternateScoring() {
		s.restrict(ctx, u, fmt.Sprintf("performance %.0f above ceiling %.0f", candidate.PP, s.ppCeiling))
		return zero, fmt.Errorf("%w: performance above threshold", ErrRuleViolation)
	}

	if expectSessionChecksum(in) != in.SessionChecksum {
		s.restrict(ctx, u, "submission integrity checksum mismatch")
		return zero, fmt.Errorf("%w: integrity checksum mismatch", ErrRuleViolation)
	}

	if in.Passed && !in.Mods.NoFailEquivalent() && len(in.Replay) == 0 {
		return zero, fmt.Errorf("%w: passed submission carries no replay", ErrInvalidRequest)
	}

	candidate.Checksum = checksum
	if len(in.Replay) > 0 {
		ref, err := s.ids.NewID()
		if err != nil {
			return zero, fmt.Errorf("%w: allocate replay reference: %w", ErrTransientStore, err)
		}
		candidate.ReplayRef = &ref
	}

	lockKey := fmt.Sprintf("%d|%s|%d", u.ID, in.BeatmapHash, in.Mode)
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	prior, err := s.scores.ListByUserBeatmap(ctx, u.ID, in.BeatmapHash, in.Mode)
	if err != nil {
		return zero, fmt.Errorf("%w: list prior scores: %w", ErrTransientStore, err)
	}
	prevBest, hasPrev := BestInGroup(prior, u.ID, in.Mods)

	mapScores, err := s.scores.ListByBeatmap(ctx, in.BeatmapHash, in.Mode)
	if err != nil {
		return zero, fmt.Errorf("%w: list beatmap scores: %w", ErrTransientStore, err)
	}
	mapBoardBefore := Leaderboard(mapScores)

	st, ok, err := s.stats.GetByUserMode(ctx, u.ID, uint8(in.Mode))
	if err != nil {
		return zero, fmt.Errorf("%w: load statistics: %w", ErrTransientStore, err)
	}
	if !ok {
		st = stats.UserStatistics{UserID: u.ID, Mode: uint8(in.Mode)}
	}
	before := st
	globalBefore, _ := s.ranks.GetRanks(ctx, u, uint8(in.Mode))

	var demote *score.StatusChange
	switch {
	case !in.Passed:
		candidate.Status = score.StatusFailed
	case !hasPrev || betterThan(candidate, prevBest):
		candidate.Status = score.StatusBest
		if hasPrev {
			demote = &score.StatusChange{ScoreID: prevBest.ID, To: score.StatusSubmitted}
		}
	default:
		candidate.Status = score.StatusSubmitted
	}

	st = mergeStatistics(st, candidate, prevBest, hasPrev, bm, playTime(in))
	if candidate.Status == score.StatusBest {
		bests, err := s.scores.ListBestsByUser(ctx, u.ID, in.Mode)
		if err != nil {
			return zero, fmt.Errorf("%w: list bests: %w", ErrTransientStore, err)
		}
		st.PP, st.Accuracy = WeightedAggregates(replaceBest(bests, candidate))
	}

	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: submission cancelled before persist: %w", ErrTransientStore, err)
	}
	// Past this point the commit must not be split by caller cancellation.
	persistCtx := context.WithoutCancel(ctx)

	scoreID, err := s.scores.InsertWithStatistics(persistCtx, candidate, st, demote)
	if err != nil {
		return zero, fmt.Errorf("%w: persist score: %w", ErrTransientStore, err)
	}
	candidate.ID = scoreID

	if err := s.ranks.UpsertScore(persistCtx, st, u); err != nil {
		return zero, fmt.Errorf("refresh leaderboards: %w", err)
	}
	globalAfter, _ := s.ranks.GetRanks(persistCtx, u, uint8(in.Mode))

	mapBoardAfter := Leaderboard(append(mapScores, candidate))

	result := SubmissionResult{
		ScoreID: scoreID,
		Status:  candidate.Status,
		PP:      candidate.PP,
		Beatmap: beatmapDelta(mapBoardBefore, mapBoardAfter, prevBest, hasPrev, candidate),
		Overall: overallDelta(before, st, globalBefore, globalAfter),
	}

	if candidate.Status == score.StatusBest {
		result.FirstPlace = tookFirstPlace(mapBoardBefore, mapBoardAfter, u.ID)
		result.Unlocked = medal.Evaluate(s.medals, candidate, bm.ID)
	}

	s.announce(persistCtx, result, u, bm, candidate, mapBoardBefore)

	s.logger.InfoContext(ctx, "score submitted",
		"score_id", scoreID, "user_id", u.ID, "beatmap", in.BeatmapHash,
		"mode", in.Mode.String(), "status", candidate.Status.String(), "pp", candidate.PP)

	return result, nil
}

func validateInput(in SubmitInput) error {
	switch {
	case in.UserID <= 0:
		return fmt.Errorf("%w: user id must be positive", ErrInvalidRequest)
	case in.BeatmapHash == "":
		return fmt.Errorf("%w: beatmap hash is required", ErrInvalidRequest)
	case !in.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, in.Mode)
	case in.TotalScore < 0:
		return fmt.Errorf("%w: negative total score", ErrInvalidRequest)
	case in.MaxCombo < 0 || in.Count300 < 0 || in.Count100 < 0 || in.Count50 < 0 ||
		in.CountGeki < 0 || in.CountKatu < 0 || in.CountMiss < 0:
		return fmt.Errorf("%w: negative hit counts", ErrInvalidRequest)
	case in.Accuracy < 0 || in.Accuracy > 100:
		return fmt.Errorf("%w: accuracy out of range", ErrInvalidRequest)
	case in.SessionID == "" || in.SessionChecksum == "":
		return fmt.Errorf("%w: session proof is required", ErrInvalidRequest)
	}

	return nil
}

func buildScore(in SubmitInput, now func() time.Time) score.Score {
	playedAt := in.EndedAt
	if playedAt.IsZero() {
		playedAt = now()
	}

	return score.Score{
		UserID:      in.UserID,
		BeatmapHash: in.BeatmapHash,
		Mode:        in.Mode,
		Mods:        in.Mods,
		TotalScore:  in.TotalScore,
		Accuracy:    in.Accuracy,
		MaxCombo:    in.MaxCombo,
		Count300:    in.Count300,
		Count100:    in.Count100,
		Count50:     in.Count50,
		CountGeki:   in.CountGeki,
		CountKatu:   in.CountKatu,
		CountMiss:   in.CountMiss,
		Passed:      in.Passed,
		Perfect:     in.Perfect,
		PlayedAt:    playedAt,
	}
}

// expectSessionChecksum recomputes the proof the client must present. The
// checksum binds user, map, session and score together, so a payload replayed
// into another session fails the gate.
func expectSessionChecksum(in SubmitInput) string {
	sum := md5.Sum(fmt.Appendf(nil, "%d:%s:%s:%d:%d",
		in.UserID, in.BeatmapHash, in.SessionID, in.TotalScore, in.Mods))
	return hex.EncodeToString(sum[:])
}

func playTime(in SubmitInput) time.Duration {
	var elapsed time.Duration
	if in.Passed {
		elapsed = in.EndedAt.Sub(in.StartedAt)
	} else {
		elapsed = time.Duration(in.FailedAtMs) * time.Millisecond
	}

	if elapsed < 0 {
		return 0
	}
	if elapsed > maxPlayTime {
		return maxPlayTime
	}
	return elapsed
}

// mergeStatistics folds one play into the aggregate row. Counters accumulate
// on every play, failed ones included; ranked score moves only when a new
// group best lands on a map that awards it.
func mergeStatistics(st stats.UserStatistics, candidate score.Score, prevBest score.Score, hasPrev bool, bm beatmap.Beatmap, elapsed time.Duration) stats.UserStatistics {
	st.PlayCount++
	st.TotalScore += candidate.TotalScore
	st.TotalHits += int64(candidate.TotalHits())
	st.PlayTime += elapsed
	if candidate.MaxCombo > st.MaxCombo {
		st.MaxCombo = candidate.MaxCombo
	}

	if candidate.Status == score.StatusBest && bm.AwardsRankedScore() {
		delta := candidate.TotalScore
		if hasPrev {
			delta -= prevBest.TotalScore
		}
		st.RankedScore += delta
	}

	return st
}

// replaceBest swaps the candidate in for any stored best of the same group,
// so aggregates are computed against the state the commit is about to create.
func replaceBest(bests []score.Score, candidate score.Score) []score.Score {
	out := make([]score.Score, 0, len(bests)+1)
	for _, s := range bests {
		if s.UserID == candidate.UserID && s.BeatmapHash == candidate.BeatmapHash && s.Mods == candidate.Mods {
			continue
		}
		out = append(out, s)
	}

	return append(out, candidate)
}

// WeightedAggregates reduces bests to one score per beatmap, orders them by
// performance, and applies the positional decay: the i-th best contributes
// with weight decay^i. Accuracy is normalized so an account with one play
// shows that play's accuracy. Moderation reuses it when a removed score
// forces a recompute.
func WeightedAggregates(bests []score.Score) (pp, accuracy float64) {
	byMap := make(map[string]score.Score, len(bests))
	for _, s := range bests {
		current, ok := byMap[s.BeatmapHash]
		if !ok || s.PP > current.PP {
			byMap[s.BeatmapHash] = s
		}
	}

	top := make([]score.Score, 0, len(byMap))
	for _, s := range byMap {
		top = append(top, s)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].PP > top[j].PP })

	weight := 1.0
	var accSum, weightSum float64
	for _, s := range top {
		pp += s.PP * weight
		accSum += s.Accuracy * weight
		weightSum += weight
		weight *= aggregateDecay
	}
	if weightSum > 0 {
		accuracy = accSum / weightSum
	}

	return pp, accuracy
}

func beatmapDelta(boardBefore, boardAfter []score.Score, prevBest score.Score, hasPrev bool, candidate score.Score) Delta {
	d := Delta{
		RankBefore: int64(boardPosition(boardBefore, candidate.UserID)),
		RankAfter:  int64(boardPosition(boardAfter, candidate.UserID)),
	}

	if hasPrev {
		d.TotalScoreBefore = prevBest.TotalScore
		d.MaxComboBefore = prevBest.MaxCombo
		d.AccuracyBefore = prevBest.Accuracy
		d.PPBefore = prevBest.PP
	}

	after := prevBest
	if candidate.Status == score.StatusBest || !hasPrev {
		after = candidate
	}
	d.TotalScoreAfter = after.TotalScore
	d.MaxComboAfter = after.MaxCombo
	d.AccuracyAfter = after.Accuracy
	d.PPAfter = after.PP

	return d
}

func overallDelta(before, after stats.UserStatistics, rankBefore, rankAfter int64) Delta {
	return Delta{
		RankBefore:        rankBefore,
		RankAfter:         rankAfter,
		RankedScoreBefore: before.RankedScore,
		RankedScoreAfter:  after.RankedScore,
		TotalScoreBefore:  before.TotalScore,
		TotalScoreAfter:   after.TotalScore,
		MaxComboBefore:    before.MaxCombo,
		MaxComboAfter:     after.MaxCombo,
		AccuracyBefore:    before.Accuracy,
		AccuracyAfter:     after.Accuracy,
		PPBefore:          before.PP,
		PPAfter:           after.PP,
	}
}

func boardPosition(board []score.Score, userID int64) int {
	for i, s := range board {
		if s.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// tookFirstPlace reports a takeover: the user now heads the board and someone
// else headed it before.
func tookFirstPlace(boardBefore, boardAfter []score.Score, userID int64) bool {
	if len(boardAfter) == 0 || boardAfter[0].UserID != userID {
		return false
	}
	return len(boardBefore) == 0 || boardBefore[0].UserID != userID
}

// restrict commits the moderation side effect even when the surrounding
// submission is rejected, on a context detached from the request.
func (s *SubmissionService) restrict(ctx context.Context, u user.User, reason string) {
	if u.Restricted {
		return
	}

	detached := context.WithoutCancel(ctx)
	if err := s.moderator.Restrict(detached, u.ID, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to restrict user",
			"user_id", u.ID, "reason", reason, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "user restricted", "user_id", u.ID, "reason", reason)
}

// announce publishes first-place and medal events without blocking the
// response. Notifier failures are logged and dropped.
func (s *SubmissionService) announce(ctx context.Context, result SubmissionResult, u user.User, bm beatmap.Beatmap, candidate score.Score, boardBefore []score.Score) {
	if s.notifier == nil {
		return
	}

	if result.FirstPlace {
		fp := FirstPlace{
			UserID:       u.ID,
			UserName:     u.Name,
			BeatmapHash:  bm.Hash,
			BeatmapTitle: fmt.Sprintf("%s - %s [%s]", bm.Artist, bm.Title, bm.Version),
			Mode:         uint8(candidate.Mode),
			TotalScore:   candidate.TotalScore,
		}
		if len(boardBefore) > 0 {
			fp.DethronedID = boardBefore[0].UserID
		}
		go func() {
			if err := s.notifier.AnnounceFirstPlace(ctx, fp); err != nil {
				s.logger.Warn("first place announcement failed", "user_id", u.ID, "error", err)
			}
		}()
	}

	if len(result.Unlocked) > 0 {
		unlocked := result.Unlocked
		go func() {
			if err := s.notifier.AnnounceMedals(ctx, u.ID, unlocked); err != nil {
				s.logger.Warn("medal announcement failed", "user_id", u.ID, "error", err)
			}
		}()
	}
}
