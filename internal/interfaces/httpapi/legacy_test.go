package httpapi

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rhythmnet/rhythmd/internal/domain/medal"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

func TestLegacyFailureMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: checksum seen", usecase.ErrDuplicate), "error: dup"},
		{fmt.Errorf("%w: illegal mods", usecase.ErrRuleViolation), "error: ban"},
		{fmt.Errorf("%w: paused", usecase.ErrMaintenance), "error: maintenance"},
		{fmt.Errorf("%w: bad hash", usecase.ErrInvalidRequest), "error: no"},
		{fmt.Errorf("storage down"), "error: no"},
	}

	for _, tc := range cases {
		if got := legacyFailure(tc.err); got != tc.want {
			t.Fatalf("legacyFailure(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFormatLegacyCharts_FieldOrder(t *testing.T) {
	res := usecase.SubmissionResult{
		ScoreID: 77,
		Status:  score.StatusBest,
		Beatmap: usecase.Delta{
			RankBefore: 3, RankAfter: 1,
			TotalScoreBefore: 500, TotalScoreAfter: 1000,
			MaxComboBefore: 100, MaxComboAfter: 200,
			AccuracyBefore: 95.5, AccuracyAfter: 98.25,
			PPBefore: 50, PPAfter: 75.5,
		},
		Overall: usecase.Delta{
			RankBefore: 1200, RankAfter: 1100,
			RankedScoreBefore: 900, RankedScoreAfter: 1900,
		},
		Unlocked: []medal.Medal{{ID: 1, Name: "Millionaire"}, {ID: 2, Name: "Combo 500"}},
	}

	out := formatLegacyCharts(res)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 chart lines, got %d: %q", len(lines), out)
	}

	wantBeatmap := "chartId:beatmap|chartName:Beatmap Ranking|" +
		"rankBefore:3|rankAfter:1|" +
		"rankedScoreBefore:0|rankedScoreAfter:0|" +
		"totalScoreBefore:500|totalScoreAfter:1000|" +
		"maxComboBefore:100|maxComboAfter:200|" +
		"accuracyBefore:95.50|accuracyAfter:98.25|" +
		"ppBefore:50.00|ppAfter:75.50|" +
		"onlineScoreId:77"
	if lines[0] != wantBeatmap {
		t.Fatalf("beatmap chart mismatch:\n got %q\nwant %q", lines[0], wantBeatmap)
	}

	if !strings.HasPrefix(lines[1], "chartId:overall|chartName:Overall Ranking|rankBefore:1200|rankAfter:1100|") {
		t.Fatalf("overall chart prefix mismatch: %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], "achievements-new:Millionaire/Combo 500") {
		t.Fatalf("expected medal names at end of overall chart, got %q", lines[1])
	}
}

func TestFormatLegacyCharts_NoMedals(t *testing.T) {
	out := formatLegacyCharts(usecase.SubmissionResult{ScoreID: 5})
	if !strings.HasSuffix(out, "achievements-new:") {
		t.Fatalf("expected empty achievements marker, got %q", out)
	}
}
