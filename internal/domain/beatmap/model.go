package beatmap

import "time"

// RankedStatus mirrors the mirror-supplied ranking state of a beatmap.
type RankedStatus int

const (
	StatusGraveyard RankedStatus = -2
	StatusPending   RankedStatus = 0
	StatusRanked    RankedStatus = 1
	StatusApproved  RankedStatus = 2
	StatusQualified RankedStatus = 3
	StatusLoved     RankedStatus = 4
)

type Beatmap struct {
	Hash       string
	ID         int64
	SetID      int64
	Artist     string
	Title      string
	Version    string
	Mode       uint8
	Status     RankedStatus
	StarRating float64
	MaxCombo   int
	UpdatedAt  time.Time
}

// Scoreable reports whether submissions against this map are accepted.
// Pending and graveyarded maps keep scores client-side only.
func (b Beatmap) Scoreable() bool {
	switch b.Status {
	case StatusRanked, StatusApproved, StatusQualified, StatusLoved:
		return true
	default:
		return false
	}
}

// AwardsRankedScore reports whether the map contributes to ranked score.
// Loved and qualified maps keep leaderboards but award no ranked score.
func (b Beatmap) AwardsRankedScore() bool {
	return b.Status == StatusRanked || b.Status == StatusApproved
}
