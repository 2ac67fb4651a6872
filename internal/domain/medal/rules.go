package medal

import "github.com/rhythmnet/rhythmd/internal/domain/score"

// Condition is one member of the closed predicate set. Unlock rules are
// plain data evaluated by a dispatcher, never runtime expressions, so the
// full rule set stays statically checkable.
type Condition interface {
	isCondition()
}

// Field names a numeric score field a threshold predicate can read.
type Field string

const (
	FieldTotalScore Field = "total_score"
	FieldMaxCombo   Field = "max_combo"
	FieldAccuracy   Field = "accuracy"
	FieldPP         Field = "pp"
)

// ThresholdOnField unlocks when the named field reaches the threshold.
type ThresholdOnField struct {
	Field     Field
	Threshold float64
}

// ModBitSet unlocks when the score was played with the given mod set.
type ModBitSet struct {
	Mods score.Mods
}

// ExactBeatmap unlocks on a passed play of one specific beatmap.
type ExactBeatmap struct {
	BeatmapID int64
}

func (ThresholdOnField) isCondition() {}
func (ModBitSet) isCondition()        {}
func (ExactBeatmap) isCondition()     {}

// Unlocked dispatches on the condition type. Only passed scores count.
func Unlocked(m Medal, s score.Score, beatmapID int64) bool {
	if !s.Passed {
		return false
	}

	switch c := m.Condition.(type) {
	case ThresholdOnField:
		return fieldValue(s, c.Field) >= c.Threshold
	case ModBitSet:
		return s.Mods&c.Mods == c.Mods
	case ExactBeatmap:
		return beatmapID == c.BeatmapID
	default:
		return false
	}
}

// Evaluate returns the medals from the set unlocked by the score.
func Evaluate(set []Medal, s score.Score, beatmapID int64) []Medal {
	var out []Medal
	for _, m := range set {
		if Unlocked(m, s, beatmapID) {
			out = append(out, m)
		}
	}
	return out
}

func fieldValue(s score.Score, f Field) float64 {
	switch f {
	case FieldTotalScore:
		return float64(s.TotalScore)
	case FieldMaxCombo:
		return float64(s.MaxCombo)
	case FieldAccuracy:
		return s.Accuracy
	case FieldPP:
		return s.PP
	default:
		return 0
	}
}

// DefaultSet is the built-in medal catalogue.
func DefaultSet() []Medal {
	return []Medal{
		{ID: 1, Name: "500k", Condition: ThresholdOnField{Field: FieldTotalScore, Threshold: 500_000}},
		{ID: 2, Name: "Millionaire", Condition: ThresholdOnField{Field: FieldTotalScore, Threshold: 1_000_000}},
		{ID: 3, Name: "Combo 500", Condition: ThresholdOnField{Field: FieldMaxCombo, Threshold: 500}},
		{ID: 4, Name: "Perfectionist", Condition: ThresholdOnField{Field: FieldAccuracy, Threshold: 100}},
		{ID: 5, Name: "Blindsided", Condition: ModBitSet{Mods: score.ModHidden | score.ModFlashlite}},
	}
}
