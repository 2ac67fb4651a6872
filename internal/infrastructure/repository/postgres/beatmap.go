package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
)

type beatmapRow struct {
	Hash       string    `db:"hash"`
	ID         int64     `db:"id"`
	SetID      int64     `db:"set_id"`
	Artist     string    `db:"artist"`
	Title      string    `db:"title"`
	Version    string    `db:"version"`
	Mode       uint8     `db:"mode"`
	Status     int       `db:"status"`
	StarRating float64   `db:"star_rating"`
	MaxCombo   int       `db:"max_combo"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r beatmapRow) toDomain() beatmap.Beatmap {
	return beatmap.Beatmap{
		Hash:       r.Hash,
		ID:         r.ID,
		SetID:      r.SetID,
		Artist:     r.Artist,
		Title:      r.Title,
		Version:    r.Version,
		Mode:       r.Mode,
		Status:     beatmap.RankedStatus(r.Status),
		StarRating: r.StarRating,
		MaxCombo:   r.MaxCombo,
		UpdatedAt:  r.UpdatedAt,
	}
}

const selectBeatmapByHash = `
SELECT hash, id, set_id, artist, title, version, mode, status, star_rating,
       max_combo, updated_at
FROM beatmaps
WHERE hash = $1`

type BeatmapRepository struct {
	db *sqlx.DB
}

func NewBeatmapRepository(db *sqlx.DB) (*BeatmapRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &BeatmapRepository{db: db}, nil
}

var _ beatmap.Repository = (*BeatmapRepository)(nil)

func (r *BeatmapRepository) GetByHash(ctx context.Context, hash string) (beatmap.Beatmap, bool, error) {
	var row beatmapRow
	if err := r.db.GetContext(ctx, &row, selectBeatmapByHash, hash); err != nil {
		if isNotFound(err) {
			return beatmap.Beatmap{}, false, nil
		}
		return beatmap.Beatmap{}, false, fmt.Errorf("select beatmap by hash: %w", err)
	}
	return row.toDomain(), true, nil
}
