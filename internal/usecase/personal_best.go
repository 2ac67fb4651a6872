package usecase

import (
	"sort"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
)

// The personal-best resolver is pure: it derives ordering facts from a slice
// of score records without touching any store, so the same functions serve
// both the submission pipeline and read-side leaderboards.

type groupKey struct {
	userID int64
	mods   score.Mods
}

func eligible(s score.Score) bool {
	return s.Passed && s.Status != score.StatusFailed
}

// betterThan reports whether a beats b on a leaderboard. Total score decides,
// earlier play wins ties, and the score ID breaks exact collisions so the
// ordering is total.
func betterThan(a, b score.Score) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if !a.PlayedAt.Equal(b.PlayedAt) {
		return a.PlayedAt.Before(b.PlayedAt)
	}

	return a.ID < b.ID
}

// GroupBests reduces scores to at most one per (user, mods) group, keeping
// the best passed score of each group. Failed scores never become bests.
func GroupBests(scores []score.Score) []score.Score {
	bests := make(map[groupKey]score.Score, len(scores))
	for _, s := range scores {
		if !eligible(s) {
			continue
		}
		key := groupKey{userID: s.UserID, mods: s.Mods}
		current, ok := bests[key]
		if !ok || betterThan(s, current) {
			bests[key] = s
		}
	}

	out := make([]score.Score, 0, len(bests))
	for _, s := range bests {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return betterThan(out[i], out[j]) })

	return out
}

// BestInGroup returns the best passed score for one (user, mods) group.
func BestInGroup(scores []score.Score, userID int64, mods score.Mods) (score.Score, bool) {
	var best score.Score
	found := false
	for _, s := range scores {
		if !eligible(s) || s.UserID != userID || s.Mods != mods {
			continue
		}
		if !found || betterThan(s, best) {
			best = s
			found = true
		}
	}

	return best, found
}

// Leaderboard reduces scores to one entry per user, the best across all mod
// groups, ordered best first. Position 1 is the head of the returned slice.
func Leaderboard(scores []score.Score) []score.Score {
	bests := make(map[int64]score.Score, len(scores))
	for _, s := range scores {
		if !eligible(s) {
			continue
		}
		current, ok := bests[s.UserID]
		if !ok || betterThan(s, current) {
			bests[s.UserID] = s
		}
	}

	out := make([]score.Score, 0, len(bests))
	for _, s := range bests {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return betterThan(out[i], out[j]) })

	return out
}

// LeaderboardPosition returns the 1-indexed position of userID on the
// leaderboard derived from scores, or 0 when the user has no passed score.
func LeaderboardPosition(scores []score.Score, userID int64) int {
	for i, s := range Leaderboard(scores) {
		if s.UserID == userID {
			return i + 1
		}
	}

	return 0
}
