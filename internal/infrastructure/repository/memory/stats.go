package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rhythmnet/rhythmd/internal/domain/stats"
)

type statsKey struct {
	userID int64
	mode   uint8
}

type StatsRepository struct {
	mu   sync.RWMutex
	rows map[statsKey]stats.UserStatistics
}

func NewStatsRepository() *StatsRepository {
	return &StatsRepository{rows: make(map[statsKey]stats.UserStatistics)}
}

var _ stats.Repository = (*StatsRepository)(nil)

func (r *StatsRepository) GetByUserMode(_ context.Context, userID int64, mode uint8) (stats.UserStatistics, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[statsKey{userID: userID, mode: mode}]
	return row, ok, nil
}

func (r *StatsRepository) Upsert(_ context.Context, st stats.UserStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := statsKey{userID: st.UserID, mode: st.Mode}
	if existing, ok := r.rows[key]; ok {
		// The best-rank pair is owned by TightenBestRank; a statistics upsert
		// never regresses it.
		st.BestGlobalRank = existing.BestGlobalRank
		st.BestGlobalRankAt = existing.BestGlobalRankAt
		st.BestCountryRank = existing.BestCountryRank
		st.BestCountryRankAt = existing.BestCountryRankAt
	}
	r.rows[key] = st

	return nil
}

func (r *StatsRepository) TightenBestRank(_ context.Context, userID int64, mode uint8, kind stats.RankKind, rank int64, at time.Time) error {
	if rank <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := statsKey{userID: userID, mode: mode}
	row, ok := r.rows[key]
	if !ok {
		row = stats.UserStatistics{UserID: userID, Mode: mode}
	}

	switch kind {
	case stats.RankGlobal:
		if row.BestGlobalRank == 0 || rank < row.BestGlobalRank {
			row.BestGlobalRank = rank
			row.BestGlobalRankAt = at
		}
	case stats.RankCountry:
		if row.BestCountryRank == 0 || rank < row.BestCountryRank {
			row.BestCountryRank = rank
			row.BestCountryRankAt = at
		}
	}
	r.rows[key] = row

	return nil
}
