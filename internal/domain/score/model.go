package score

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Mode identifies one of the four game modes.
type Mode uint8

const (
	ModeStandard Mode = iota
	ModeTaiko
	ModeCatch
	ModeMania

	ModeCount = 4
)

func (m Mode) Valid() bool {
	return m < ModeCount
}

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "catch"
	case ModeMania:
		return "mania"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Status classifies a persisted score relative to its mod-identical group.
// At most one non-deleted score per (user, beatmap, mode, mods) holds StatusBest.
type Status int

const (
	StatusFailed Status = iota
	StatusSubmitted
	StatusBest
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSubmitted:
		return "submitted"
	case StatusBest:
		return "best"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Score is a single play attempt.
type Score struct {
	ID          int64
	UserID      int64
	BeatmapHash string
	Mode        Mode
	Mods        Mods
	TotalScore  int64
	PP          float64
	Accuracy    float64
	MaxCombo    int
	Count300    int
	Count100    int
	Count50     int
	CountGeki   int
	CountKatu   int
	CountMiss   int
	Passed      bool
	Perfect     bool
	Checksum    string
	ReplayRef   *string
	Status      Status
	PlayedAt    time.Time
}

// TotalHits is the number of judged objects, misses included.
func (s Score) TotalHits() int {
	return s.Count300 + s.Count100 + s.Count50 + s.CountGeki + s.CountKatu + s.CountMiss
}

// Fingerprint is the content hash used for duplicate detection. It covers
// every field a client could legitimately vary, so a byte-identical retry
// always collides and two distinct plays never do.
func (s Score) Fingerprint() string {
	sum := md5.Sum(fmt.Appendf(nil, "%d:%s:%d:%d:%d:%d:%d:%d:%d:%d:%d:%d:%t:%d",
		s.UserID, s.BeatmapHash, s.Mode, s.Mods, s.TotalScore, s.MaxCombo,
		s.Count300, s.Count100, s.Count50, s.CountGeki, s.CountKatu, s.CountMiss,
		s.Passed, s.PlayedAt.Unix(),
	))
	return hex.EncodeToString(sum[:])
}
