package rank

import (
	"strconv"
	"strings"
)

// Unranked is the sentinel returned when a rank cannot be determined.
// Rank display degrades to it instead of failing the caller.
const Unranked = int64(1<<31 - 1)

// GlobalKey names the global ordered set for a mode.
func GlobalKey(mode uint8) string {
	return "leaderboard:" + strconv.Itoa(int(mode))
}

// CountryKey names the per-country ordered set for a mode.
func CountryKey(mode uint8, country string) string {
	return GlobalKey(mode) + ":" + strings.ToLower(country)
}
