// Package moderation applies account restrictions and propagates them to the
// leaderboards, so a restricted user disappears from public rankings the
// moment the flag lands.
package moderation

import (
	"context"
	"fmt"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

type Service struct {
	users    user.Repository
	stats    stats.Repository
	scores   score.Repository
	beatmaps usecase.BeatmapSource
	ranks    usecase.RankRefresher
	logger   *logging.Logger
}

func NewService(users user.Repository, statsRepo stats.Repository, scores score.Repository, beatmaps usecase.BeatmapSource, ranks usecase.RankRefresher, logger *logging.Logger) (*Service, error) {
	switch {
	case users == nil:
		return nil, fmt.Errorf("user repository is required")
	case statsRepo == nil:
		return nil, fmt.Errorf("statistics repository is required")
	case scores == nil:
		return nil, fmt.Errorf("score repository is required")
	case beatmaps == nil:
		return nil, fmt.Errorf("beatmap source is required")
	case ranks == nil:
		return nil, fmt.Errorf("rank refresher is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Service{users: users, stats: statsRepo, scores: scores, beatmaps: beatmaps, ranks: ranks, logger: logger}, nil
}

var _ usecase.Moderator = (*Service)(nil)

// Restrict flags the account and republishes its leaderboard entries with
// the restricted sentinel value, cascading best-rank updates to everyone who
// moves up. Leaderboard propagation is best effort; the flag itself is the
// source of truth.
func (s *Service) Restrict(ctx context.Context, userID int64, reason string) error {
	u, ok, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d", usecase.ErrNotFound, userID)
	}
	if u.Restricted {
		return nil
	}

	if err := s.users.SetRestricted(ctx, userID, true); err != nil {
		return fmt.Errorf("set restricted flag: %w", err)
	}
	u.Restricted = true

	s.logger.WarnContext(ctx, "account restricted", "user_id", userID, "reason", reason)

	for mode := uint8(0); mode < score.ModeCount; mode++ {
		st, ok, err := s.stats.GetByUserMode(ctx, userID, mode)
		if err != nil || !ok {
			continue
		}
		if err := s.ranks.UpsertScore(ctx, st, u); err != nil {
			s.logger.ErrorContext(ctx, "failed to demote restricted user on leaderboard",
				"user_id", userID, "mode", mode, "error", err)
		}
	}

	return nil
}

// RemoveScore soft-deletes a score. When the removed score was a personal
// best the runner-up of the same mod group is promoted and the user's
// aggregate statistics are recomputed, so the leaderboards never keep a
// phantom entry backed by a deleted record.
func (s *Service) RemoveScore(ctx context.Context, scoreID int64) error {
	sc, ok, err := s.scores.GetByID(ctx, scoreID)
	if err != nil {
		return fmt.Errorf("load score %d: %w", scoreID, err)
	}
	if !ok {
		return fmt.Errorf("%w: score %d", usecase.ErrNotFound, scoreID)
	}

	if err := s.scores.SoftDelete(ctx, scoreID); err != nil {
		return fmt.Errorf("delete score %d: %w", scoreID, err)
	}
	s.logger.WarnContext(ctx, "score removed", "score_id", scoreID, "user_id", sc.UserID)

	if sc.Status != score.StatusBest {
		return nil
	}

	group, err := s.scores.ListByUserBeatmap(ctx, sc.UserID, sc.BeatmapHash, sc.Mode)
	if err != nil {
		return fmt.Errorf("load mod group: %w", err)
	}
	promoted, hasRunnerUp := usecase.BestInGroup(group, sc.UserID, sc.Mods)
	if hasRunnerUp {
		if err := s.scores.UpdateStatus(ctx, promoted.ID, score.StatusBest); err != nil {
			return fmt.Errorf("promote score %d: %w", promoted.ID, err)
		}
	}

	st, ok, err := s.stats.GetByUserMode(ctx, sc.UserID, uint8(sc.Mode))
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}
	if !ok {
		return nil
	}

	// The promotion above already landed, so the listing reflects the new
	// set of bests.
	bests, err := s.scores.ListBestsByUser(ctx, sc.UserID, sc.Mode)
	if err != nil {
		return fmt.Errorf("load bests: %w", err)
	}
	st.PP, st.Accuracy = usecase.WeightedAggregates(bests)

	bm, okb, err := s.beatmaps.GetByHash(ctx, sc.BeatmapHash)
	if err == nil && okb && bm.AwardsRankedScore() {
		st.RankedScore -= sc.TotalScore
		if hasRunnerUp {
			st.RankedScore += promoted.TotalScore
		}
		if st.RankedScore < 0 {
			st.RankedScore = 0
		}
	}

	if err := s.stats.Upsert(ctx, st); err != nil {
		return fmt.Errorf("update statistics: %w", err)
	}

	u, ok, err := s.users.GetByID(ctx, sc.UserID)
	if err != nil || !ok {
		return nil
	}
	if err := s.ranks.UpsertScore(ctx, st, u); err != nil {
		s.logger.ErrorContext(ctx, "failed to republish leaderboard entry after score removal",
			"user_id", sc.UserID, "mode", sc.Mode, "error", err)
	}

	return nil
}

// Unrestrict lifts the flag and restores the user's real leaderboard values.
func (s *Service) Unrestrict(ctx context.Context, userID int64) error {
	u, ok, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d", usecase.ErrNotFound, userID)
	}
	if !u.Restricted {
		return nil
	}

	if err := s.users.SetRestricted(ctx, userID, false); err != nil {
		return fmt.Errorf("clear restricted flag: %w", err)
	}
	u.Restricted = false

	s.logger.InfoContext(ctx, "account restriction lifted", "user_id", userID)

	for mode := uint8(0); mode < score.ModeCount; mode++ {
		st, ok, err := s.stats.GetByUserMode(ctx, userID, mode)
		if err != nil || !ok {
			continue
		}
		if err := s.ranks.UpsertScore(ctx, st, u); err != nil {
			s.logger.ErrorContext(ctx, "failed to restore user on leaderboard",
				"user_id", userID, "mode", mode, "error", err)
		}
	}

	return nil
}
