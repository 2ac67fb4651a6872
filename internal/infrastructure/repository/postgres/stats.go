package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rhythmnet/rhythmd/internal/domain/stats"
)

type statsRow struct {
	UserID            int64        `db:"user_id"`
	Mode              uint8        `db:"mode"`
	TotalScore        int64        `db:"total_score"`
	RankedScore       int64        `db:"ranked_score"`
	PlayCount         int          `db:"play_count"`
	Accuracy          float64      `db:"accuracy"`
	PP                float64      `db:"pp"`
	MaxCombo          int          `db:"max_combo"`
	TotalHits         int64        `db:"total_hits"`
	PlayTimeMs        int64        `db:"play_time_ms"`
	BestGlobalRank    int64        `db:"best_global_rank"`
	BestGlobalRankAt  sql.NullTime `db:"best_global_rank_at"`
	BestCountryRank   int64        `db:"best_country_rank"`
	BestCountryRankAt sql.NullTime `db:"best_country_rank_at"`
}

func (r statsRow) toDomain() stats.UserStatistics {
	out := stats.UserStatistics{
		UserID:          r.UserID,
		Mode:            r.Mode,
		TotalScore:      r.TotalScore,
		RankedScore:     r.RankedScore,
		PlayCount:       r.PlayCount,
		Accuracy:        r.Accuracy,
		PP:              r.PP,
		MaxCombo:        r.MaxCombo,
		TotalHits:       r.TotalHits,
		PlayTime:        time.Duration(r.PlayTimeMs) * time.Millisecond,
		BestGlobalRank:  r.BestGlobalRank,
		BestCountryRank: r.BestCountryRank,
	}
	if r.BestGlobalRankAt.Valid {
		out.BestGlobalRankAt = r.BestGlobalRankAt.Time
	}
	if r.BestCountryRankAt.Valid {
		out.BestCountryRankAt = r.BestCountryRankAt.Time
	}
	return out
}

const selectStats = `
SELECT user_id, mode, total_score, ranked_score, play_count, accuracy, pp,
       max_combo, total_hits, play_time_ms,
       best_global_rank, best_global_rank_at,
       best_country_rank, best_country_rank_at
FROM user_stats
WHERE user_id = $1 AND mode = $2`

// upsertStats writes every aggregate column but never touches the best-rank
// pair, which is owned by the tighten queries.
const upsertStats = `
INSERT INTO user_stats (
  user_id, mode, total_score, ranked_score, play_count, accuracy, pp,
  max_combo, total_hits, play_time_ms, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (user_id, mode) DO UPDATE SET
  total_score  = EXCLUDED.total_score,
  ranked_score = EXCLUDED.ranked_score,
  play_count   = EXCLUDED.play_count,
  accuracy     = EXCLUDED.accuracy,
  pp           = EXCLUDED.pp,
  max_combo    = EXCLUDED.max_combo,
  total_hits   = EXCLUDED.total_hits,
  play_time_ms = EXCLUDED.play_time_ms,
  updated_at   = now()`

const tightenGlobalRank = `
INSERT INTO user_stats (user_id, mode, best_global_rank, best_global_rank_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, mode) DO UPDATE SET
  best_global_rank = CASE
    WHEN user_stats.best_global_rank = 0 OR EXCLUDED.best_global_rank < user_stats.best_global_rank
    THEN EXCLUDED.best_global_rank ELSE user_stats.best_global_rank END,
  best_global_rank_at = CASE
    WHEN user_stats.best_global_rank = 0 OR EXCLUDED.best_global_rank < user_stats.best_global_rank
    THEN EXCLUDED.best_global_rank_at ELSE user_stats.best_global_rank_at END,
  updated_at = now()`

const tightenCountryRank = `
INSERT INTO user_stats (user_id, mode, best_country_rank, best_country_rank_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, mode) DO UPDATE SET
  best_country_rank = CASE
    WHEN user_stats.best_country_rank = 0 OR EXCLUDED.best_country_rank < user_stats.best_country_rank
    THEN EXCLUDED.best_country_rank ELSE user_stats.best_country_rank END,
  best_country_rank_at = CASE
    WHEN user_stats.best_country_rank = 0 OR EXCLUDED.best_country_rank < user_stats.best_country_rank
    THEN EXCLUDED.best_country_rank_at ELSE user_stats.best_country_rank_at END,
  updated_at = now()`

type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) (*StatsRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &StatsRepository{db: db}, nil
}

var _ stats.Repository = (*StatsRepository)(nil)

func (r *StatsRepository) GetByUserMode(ctx context.Context, userID int64, mode uint8) (stats.UserStatistics, bool, error) {
	var row statsRow
	if err := r.db.GetContext(ctx, &row, selectStats, userID, mode); err != nil {
		if isNotFound(err) {
			return stats.UserStatistics{}, false, nil
		}
		return stats.UserStatistics{}, false, fmt.Errorf("select user_stats: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *StatsRepository) Upsert(ctx context.Context, st stats.UserStatistics) error {
	return execUpsertStats(ctx, r.db, st)
}

func execUpsertStats(ctx context.Context, ext sqlx.ExtContext, st stats.UserStatistics) error {
	_, err := ext.ExecContext(ctx, upsertStats,
		st.UserID, st.Mode, st.TotalScore, st.RankedScore, st.PlayCount,
		st.Accuracy, st.PP, st.MaxCombo, st.TotalHits, st.PlayTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("upsert user_stats: %w", err)
	}
	return nil
}

func (r *StatsRepository) TightenBestRank(ctx context.Context, userID int64, mode uint8, kind stats.RankKind, rank int64, at time.Time) error {
	if rank <= 0 {
		return nil
	}

	query := tightenGlobalRank
	if kind == stats.RankCountry {
		query = tightenCountryRank
	}

	if _, err := r.db.ExecContext(ctx, query, userID, mode, rank, at); err != nil {
		return fmt.Errorf("tighten best rank: %w", err)
	}
	return nil
}
