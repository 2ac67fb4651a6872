package usecase

import (
	"context"
	"fmt"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

const defaultLeaderboardLimit = 50

// LeaderboardEntry is one hydrated row of a beatmap leaderboard.
type LeaderboardEntry struct {
	Position int
	UserID   int64
	UserName string
	Country  string
	Score    score.Score
}

// LeaderboardPage is a beatmap leaderboard slice plus the requester's own
// entry, which may fall outside the page.
type LeaderboardPage struct {
	BeatmapHash string
	Mode        score.Mode
	Total       int
	Entries     []LeaderboardEntry
	// Requester is the caller's entry when they have a passed score on the
	// map, regardless of page membership.
	Requester *LeaderboardEntry
}

// LeaderboardService serves read-side beatmap leaderboards derived from the
// record store through the pure resolver. Restricted users are filtered out
// of every page.
type LeaderboardService struct {
	scores   score.Repository
	users    user.Repository
	beatmaps BeatmapSource
	logger   *logging.Logger
}

func NewLeaderboardService(scores score.Repository, users user.Repository, beatmaps BeatmapSource, logger *logging.Logger) (*LeaderboardService, error) {
	if scores == nil {
		return nil, fmt.Errorf("score repository is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if beatmaps == nil {
		return nil, fmt.Errorf("beatmap source is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &LeaderboardService{scores: scores, users: users, beatmaps: beatmaps, logger: logger}, nil
}

// GetBeatmapLeaderboard returns the top entries for a map and mode. A
// non-nil mods filter restricts the board to scores with that exact mask.
// requesterID may be zero for anonymous reads.
func (s *LeaderboardService) GetBeatmapLeaderboard(ctx context.Context, beatmapHash string, mode score.Mode, mods *score.Mods, limit int, requesterID int64) (LeaderboardPage, error) {
	ctx, span := startUsecaseSpan(ctx, "LeaderboardService.GetBeatmapLeaderboard")
	defer span.End()

	var zero LeaderboardPage
	if beatmapHash == "" {
		return zero, fmt.Errorf("%w: beatmap hash is required", ErrInvalidRequest)
	}
	if !mode.Valid() {
		return zero, fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, mode)
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	if _, ok, err := s.beatmaps.GetByHash(ctx, beatmapHash); err != nil {
		return zero, fmt.Errorf("%w: load beatmap: %w", ErrTransientStore, err)
	} else if !ok {
		return zero, fmt.Errorf("%w: beatmap %s", ErrNotFound, beatmapHash)
	}

	scores, err := s.scores.ListByBeatmap(ctx, beatmapHash, mode)
	if err != nil {
		return zero, fmt.Errorf("%w: list scores: %w", ErrTransientStore, err)
	}
	if mods != nil {
		filtered := scores[:0]
		for _, sc := range scores {
			if sc.Mods == *mods {
				filtered = append(filtered, sc)
			}
		}
		scores = filtered
	}

	board := Leaderboard(scores)
	users, err := s.loadUsers(ctx, board)
	if err != nil {
		return zero, fmt.Errorf("%w: load users: %w", ErrTransientStore, err)
	}

	page := LeaderboardPage{BeatmapHash: beatmapHash, Mode: mode}
	position := 0
	for _, sc := range board {
		u, ok := users[sc.UserID]
		if !ok || u.Restricted {
			continue
		}
		position++

		entry := LeaderboardEntry{
			Position: position,
			UserID:   u.ID,
			UserName: u.Name,
			Country:  u.Country,
			Score:    sc,
		}
		if len(page.Entries) < limit {
			page.Entries = append(page.Entries, entry)
		}
		if requesterID != 0 && u.ID == requesterID {
			held := entry
			page.Requester = &held
		}
	}
	page.Total = position

	return page, nil
}

func (s *LeaderboardService) loadUsers(ctx context.Context, board []score.Score) (map[int64]user.User, error) {
	if len(board) == 0 {
		return map[int64]user.User{}, nil
	}

	ids := make([]int64, 0, len(board))
	for _, sc := range board {
		ids = append(ids, sc.UserID)
	}

	return s.users.ListByIDs(ctx, ids)
}
