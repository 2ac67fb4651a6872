package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
)

type scoreRow struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	BeatmapHash string         `db:"beatmap_hash"`
	Mode        uint8          `db:"mode"`
	Mods        int64          `db:"mods"`
	TotalScore  int64          `db:"total_score"`
	PP          float64        `db:"pp"`
	Accuracy    float64        `db:"accuracy"`
	MaxCombo    int            `db:"max_combo"`
	Count300    int            `db:"count_300"`
	Count100    int            `db:"count_100"`
	Count50     int            `db:"count_50"`
	CountGeki   int            `db:"count_geki"`
	CountKatu   int            `db:"count_katu"`
	CountMiss   int            `db:"count_miss"`
	Passed      bool           `db:"passed"`
	Perfect     bool           `db:"perfect"`
	Checksum    string         `db:"checksum"`
	ReplayRef   sql.NullString `db:"replay_ref"`
	Status      int            `db:"status"`
	PlayedAt    time.Time      `db:"played_at"`
}

func (r scoreRow) toDomain() score.Score {
	out := score.Score{
		ID:          r.ID,
		UserID:      r.UserID,
		BeatmapHash: r.BeatmapHash,
		Mode:        score.Mode(r.Mode),
		Mods:        score.Mods(r.Mods),
		TotalScore:  r.TotalScore,
		PP:          r.PP,
		Accuracy:    r.Accuracy,
		MaxCombo:    r.MaxCombo,
		Count300:    r.Count300,
		Count100:    r.Count100,
		Count50:     r.Count50,
		CountGeki:   r.CountGeki,
		CountKatu:   r.CountKatu,
		CountMiss:   r.CountMiss,
		Passed:      r.Passed,
		Perfect:     r.Perfect,
		Checksum:    r.Checksum,
		Status:      score.Status(r.Status),
		PlayedAt:    r.PlayedAt,
	}
	if r.ReplayRef.Valid {
		ref := r.ReplayRef.String
		out.ReplayRef = &ref
	}
	return out
}

const scoreColumns = `
id, user_id, beatmap_hash, mode, mods, total_score, pp, accuracy, max_combo,
count_300, count_100, count_50, count_geki, count_katu, count_miss,
passed, perfect, checksum, replay_ref, status, played_at`

const selectScoreByChecksum = `
SELECT ` + scoreColumns + `
FROM scores
WHERE checksum = $1 AND deleted_at IS NULL`

const selectScoreByID = `
SELECT ` + scoreColumns + `
FROM scores
WHERE id = $1 AND deleted_at IS NULL`

const selectScoresByBeatmap = `
SELECT ` + scoreColumns + `
FROM scores
WHERE beatmap_hash = $1 AND mode = $2 AND deleted_at IS NULL
ORDER BY id`

const selectScoresByUserBeatmap = `
SELECT ` + scoreColumns + `
FROM scores
WHERE user_id = $1 AND beatmap_hash = $2 AND mode = $3 AND deleted_at IS NULL
ORDER BY id`

const selectBestsByUser = `
SELECT ` + scoreColumns + `
FROM scores
WHERE user_id = $1 AND mode = $2 AND status = $3 AND deleted_at IS NULL
ORDER BY pp DESC`

const insertScore = `
INSERT INTO scores (
  user_id, beatmap_hash, mode, mods, total_score, pp, accuracy, max_combo,
  count_300, count_100, count_50, count_geki, count_katu, count_miss,
  passed, perfect, checksum, replay_ref, status, played_at, created_at
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8,
  $9, $10, $11, $12, $13, $14,
  $15, $16, $17, $18, $19, $20, now()
)
RETURNING id`

const demoteScore = `
UPDATE scores SET status = $1 WHERE id = $2 AND deleted_at IS NULL`

const softDeleteScore = `
UPDATE scores SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`

type ScoreRepository struct {
	db *sqlx.DB
}

func NewScoreRepository(db *sqlx.DB) (*ScoreRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &ScoreRepository{db: db}, nil
}

var _ score.Repository = (*ScoreRepository)(nil)

func (r *ScoreRepository) GetByChecksum(ctx context.Context, checksum string) (score.Score, bool, error) {
	var row scoreRow
	if err := r.db.GetContext(ctx, &row, selectScoreByChecksum, checksum); err != nil {
		if isNotFound(err) {
			return score.Score{}, false, nil
		}
		return score.Score{}, false, fmt.Errorf("select score by checksum: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *ScoreRepository) GetByID(ctx context.Context, id int64) (score.Score, bool, error) {
	var row scoreRow
	if err := r.db.GetContext(ctx, &row, selectScoreByID, id); err != nil {
		if isNotFound(err) {
			return score.Score{}, false, nil
		}
		return score.Score{}, false, fmt.Errorf("select score by id: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *ScoreRepository) ListByBeatmap(ctx context.Context, beatmapHash string, mode score.Mode) ([]score.Score, error) {
	return r.list(ctx, selectScoresByBeatmap, beatmapHash, uint8(mode))
}

func (r *ScoreRepository) ListByUserBeatmap(ctx context.Context, userID int64, beatmapHash string, mode score.Mode) ([]score.Score, error) {
	return r.list(ctx, selectScoresByUserBeatmap, userID, beatmapHash, uint8(mode))
}

func (r *ScoreRepository) ListBestsByUser(ctx context.Context, userID int64, mode score.Mode) ([]score.Score, error) {
	return r.list(ctx, selectBestsByUser, userID, uint8(mode), int(score.StatusBest))
}

func (r *ScoreRepository) list(ctx context.Context, query string, args ...any) ([]score.Score, error) {
	var rows []scoreRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}

	out := make([]score.Score, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// InsertWithStatistics runs the score insert, the optional demotion of the
// superseded best, and the statistics upsert in one transaction. Either all
// three land or none do.
func (r *ScoreRepository) InsertWithStatistics(ctx context.Context, s score.Score, st stats.UserStatistics, demote *score.StatusChange) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var replayRef sql.NullString
	if s.ReplayRef != nil {
		replayRef = sql.NullString{String: *s.ReplayRef, Valid: true}
	}

	var id int64
	err = tx.QueryRowxContext(ctx, insertScore,
		s.UserID, s.BeatmapHash, uint8(s.Mode), int64(s.Mods), s.TotalScore,
		s.PP, s.Accuracy, s.MaxCombo,
		s.Count300, s.Count100, s.Count50, s.CountGeki, s.CountKatu, s.CountMiss,
		s.Passed, s.Perfect, s.Checksum, replayRef, int(s.Status), s.PlayedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert score: %w", err)
	}

	if demote != nil {
		if _, err := tx.ExecContext(ctx, demoteScore, int(demote.To), demote.ScoreID); err != nil {
			return 0, fmt.Errorf("demote score %d: %w", demote.ScoreID, err)
		}
	}

	if err := execUpsertStats(ctx, tx, st); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

func (r *ScoreRepository) UpdateStatus(ctx context.Context, id int64, status score.Status) error {
	if _, err := r.db.ExecContext(ctx, demoteScore, int(status), id); err != nil {
		return fmt.Errorf("update score %d status: %w", id, err)
	}
	return nil
}

func (r *ScoreRepository) SoftDelete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, softDeleteScore, id); err != nil {
		return fmt.Errorf("soft delete score %d: %w", id, err)
	}
	return nil
}
