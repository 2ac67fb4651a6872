package rank

import "context"

// Member is one leaderboard entry as held by the ordered-set store.
type Member struct {
	UserID int64
	Value  float64
}

// Store is the fast ordered-set service backing the leaderboards. One set
// exists per leaderboard key; the member value is the user's current
// performance points (or RestrictedValue for administratively hidden users).
//
// Positions are 0-indexed counting from the numerically highest value.
// Implementations own the ascending/descending translation of their backing
// structure; the rank tracker only ever adds one to a position.
type Store interface {
	Upsert(ctx context.Context, key string, userID int64, value float64) error
	Remove(ctx context.Context, key string, userID int64) error
	// Position returns the member's 0-indexed position, or ok=false when the
	// member is not in the set.
	Position(ctx context.Context, key string, userID int64) (int64, bool, error)
	// RangeByPosition returns members occupying positions [from, to]
	// inclusive; to < 0 means through the end of the set.
	RangeByPosition(ctx context.Context, key string, from, to int64) ([]Member, error)
}

// RestrictedValue keeps a restricted user's entry present for bookkeeping
// while forcing it below every legitimate score.
const RestrictedValue = -1
