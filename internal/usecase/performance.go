package usecase

import (
	"math"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
)

// PerformanceCalculator rates a score against its beatmap. The default
// implementation is a coarse difficulty-times-accuracy model; a real rating
// backend can be swapped in without touching the pipeline.
type PerformanceCalculator interface {
	Calculate(s score.Score, b beatmap.Beatmap) float64
}

type StarPerformanceCalculator struct{}

func NewStarPerformanceCalculator() *StarPerformanceCalculator {
	return &StarPerformanceCalculator{}
}

func (c *StarPerformanceCalculator) Calculate(s score.Score, b beatmap.Beatmap) float64 {
	if !s.Passed || s.TotalHits() == 0 {
		return 0
	}

	base := math.Pow(b.StarRating, 2.2) * 18
	accFactor := math.Pow(s.Accuracy/100, 6)
	comboFactor := 1.0
	if b.MaxCombo > 0 {
		comboFactor = 0.5 + 0.5*float64(s.MaxCombo)/float64(b.MaxCombo)
	}
	missPenalty := math.Pow(0.97, float64(s.CountMiss))

	multiplier := 1.0
	if s.Mods.Has(score.ModHidden) {
		multiplier *= 1.06
	}
	if s.Mods.Has(score.ModHardRock) {
		multiplier *= 1.1
	}
	if s.Mods.Has(score.ModDoubleTm) || s.Mods.Has(score.ModNightcore) {
		multiplier *= 1.2
	}
	if s.Mods.Has(score.ModEasy) {
		multiplier *= 0.5
	}
	if s.Mods.Has(score.ModHalfTime) {
		multiplier *= 0.3
	}

	return base * accFactor * comboFactor * missPenalty * multiplier
}
