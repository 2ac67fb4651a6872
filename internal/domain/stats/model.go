package stats

import "time"

// UserStatistics is the per-user-per-mode aggregate row.
type UserStatistics struct {
	UserID      int64
	Mode        uint8
	TotalScore  int64
	RankedScore int64
	PlayCount   int
	Accuracy    float64
	PP          float64
	MaxCombo    int
	TotalHits   int64
	PlayTime    time.Duration

	// Best ranks only ever improve once set; the timestamp moves only when
	// the value itself changes.
	BestGlobalRank    int64
	BestGlobalRankAt  time.Time
	BestCountryRank   int64
	BestCountryRankAt time.Time
}

// HasBestGlobalRank reports whether a best global rank was ever recorded.
func (s UserStatistics) HasBestGlobalRank() bool {
	return s.BestGlobalRank > 0
}

func (s UserStatistics) HasBestCountryRank() bool {
	return s.BestCountryRank > 0
}
