package medal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
)

func TestUnlocked_ThresholdOnField(t *testing.T) {
	t.Parallel()

	m := Medal{ID: 1, Condition: ThresholdOnField{Field: FieldTotalScore, Threshold: 1_000_000}}

	assert.True(t, Unlocked(m, score.Score{Passed: true, TotalScore: 1_000_000}, 0))
	assert.False(t, Unlocked(m, score.Score{Passed: true, TotalScore: 999_999}, 0))
	assert.False(t, Unlocked(m, score.Score{Passed: false, TotalScore: 2_000_000}, 0), "failed plays never unlock")
}

func TestUnlocked_ModBitSet(t *testing.T) {
	t.Parallel()

	m := Medal{ID: 2, Condition: ModBitSet{Mods: score.ModHidden | score.ModFlashlite}}

	assert.True(t, Unlocked(m, score.Score{Passed: true, Mods: score.ModHidden | score.ModFlashlite | score.ModHardRock}, 0))
	assert.False(t, Unlocked(m, score.Score{Passed: true, Mods: score.ModHidden}, 0), "all bits must be present")
}

func TestUnlocked_ExactBeatmap(t *testing.T) {
	t.Parallel()

	m := Medal{ID: 3, Condition: ExactBeatmap{BeatmapID: 42}}

	assert.True(t, Unlocked(m, score.Score{Passed: true}, 42))
	assert.False(t, Unlocked(m, score.Score{Passed: true}, 43))
}

func TestEvaluate_ReturnsAllUnlocked(t *testing.T) {
	t.Parallel()

	set := []Medal{
		{ID: 1, Condition: ThresholdOnField{Field: FieldTotalScore, Threshold: 100}},
		{ID: 2, Condition: ThresholdOnField{Field: FieldMaxCombo, Threshold: 999}},
		{ID: 3, Condition: ExactBeatmap{BeatmapID: 7}},
	}

	got := Evaluate(set, score.Score{Passed: true, TotalScore: 150, MaxCombo: 10}, 7)
	if assert.Len(t, got, 2) {
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(3), got[1].ID)
	}
}
