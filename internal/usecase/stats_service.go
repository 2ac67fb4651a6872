package usecase

import (
	"context"
	"fmt"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

// UserStats is the read-side aggregate view: the statistics row plus the
// user's current live ranks.
type UserStats struct {
	UserID      int64
	UserName    string
	Country     string
	Mode        score.Mode
	Statistics  stats.UserStatistics
	GlobalRank  int64
	CountryRank int64
}

// StatsService serves per-user statistics with live ranks attached. Rank
// lookups degrade to the unranked sentinel rather than failing the read.
type StatsService struct {
	stats  stats.Repository
	users  UserSource
	ranks  RankRefresher
	logger *logging.Logger
}

// UserSource is the narrow user lookup the stats read side needs.
type UserSource interface {
	GetByID(ctx context.Context, id int64) (user.User, bool, error)
}

func NewStatsService(statsRepo stats.Repository, users UserSource, ranks RankRefresher, logger *logging.Logger) (*StatsService, error) {
	if statsRepo == nil {
		return nil, fmt.Errorf("statistics repository is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user source is required")
	}
	if ranks == nil {
		return nil, fmt.Errorf("rank refresher is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &StatsService{stats: statsRepo, users: users, ranks: ranks, logger: logger}, nil
}

// GetUserStats returns the statistics row for a user and mode with current
// ranks. A user who never played the mode gets a zero row, not an error.
func (s *StatsService) GetUserStats(ctx context.Context, userID int64, mode score.Mode) (UserStats, error) {
	ctx, span := startUsecaseSpan(ctx, "StatsService.GetUserStats")
	defer span.End()

	var zero UserStats
	if userID <= 0 {
		return zero, fmt.Errorf("%w: user id must be positive", ErrInvalidRequest)
	}
	if !mode.Valid() {
		return zero, fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, mode)
	}

	u, ok, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return zero, fmt.Errorf("%w: load user: %w", ErrTransientStore, err)
	}
	if !ok {
		return zero, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}

	row, ok, err := s.stats.GetByUserMode(ctx, userID, uint8(mode))
	if err != nil {
		return zero, fmt.Errorf("%w: load statistics: %w", ErrTransientStore, err)
	}
	if !ok {
		row = stats.UserStatistics{UserID: userID, Mode: uint8(mode)}
	}

	globalRank, countryRank := s.ranks.GetRanks(ctx, u, uint8(mode))

	return UserStats{
		UserID:      u.ID,
		UserName:    u.Name,
		Country:     u.Country,
		Mode:        mode,
		Statistics:  row,
		GlobalRank:  globalRank,
		CountryRank: countryRank,
	}, nil
}
