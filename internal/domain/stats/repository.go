package stats

import (
	"context"
	"time"
)

// RankKind selects which best-rank pair a tighten-only update targets.
type RankKind int

const (
	RankGlobal RankKind = iota
	RankCountry
)

type Repository interface {
	GetByUserMode(ctx context.Context, userID int64, mode uint8) (UserStatistics, bool, error)
	Upsert(ctx context.Context, st UserStatistics) error

	// TightenBestRank writes the candidate rank only if it improves on (is
	// numerically lower than) the stored best, or the stored best is unset.
	// Idempotent, so at-least-once application during cascade repair is safe.
	TightenBestRank(ctx context.Context, userID int64, mode uint8, kind RankKind, rank int64, at time.Time) error
}
