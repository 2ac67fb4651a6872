package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

// The classic game client submits scores as a form post and renders the
// response from pipe-delimited key:value charts, one chart per line. It only
// understands a fixed set of failure markers, so every rejection maps to one
// of them and the HTTP status stays 200.

const (
	legacyErrNo          = "error: no"
	legacyErrDup         = "error: dup"
	legacyErrBan         = "error: ban"
	legacyErrMaintenance = "error: maintenance"
)

func (h *Handler) SubmitScoreLegacy(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SubmitScoreLegacy")
	defer span.End()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	in, err := parseLegacySubmission(r)
	if err != nil {
		h.logger.WarnContext(ctx, "legacy submission malformed", "error", err)
		fmt.Fprint(w, legacyErrNo)
		return
	}

	result, err := h.submissionService.Submit(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "legacy submission rejected",
			"user_id", in.UserID, "beatmap_hash", in.BeatmapHash, "error", err)
		fmt.Fprint(w, legacyFailure(err))
		return
	}

	fmt.Fprint(w, formatLegacyCharts(result))
}

func parseLegacySubmission(r *http.Request) (usecase.SubmitInput, error) {
	var zero usecase.SubmitInput
	if err := r.ParseForm(); err != nil {
		return zero, fmt.Errorf("parse form: %w", err)
	}

	userID, err := strconv.ParseInt(r.PostFormValue("user_id"), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("user_id: %w", err)
	}
	mode, err := strconv.ParseUint(r.PostFormValue("mode"), 10, 8)
	if err != nil {
		return zero, fmt.Errorf("mode: %w", err)
	}
	mods, err := strconv.ParseUint(r.PostFormValue("mods"), 10, 32)
	if err != nil {
		return zero, fmt.Errorf("mods: %w", err)
	}
	totalScore, err := strconv.ParseInt(r.PostFormValue("score"), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("score: %w", err)
	}
	accuracy, err := strconv.ParseFloat(r.PostFormValue("accuracy"), 64)
	if err != nil {
		return zero, fmt.Errorf("accuracy: %w", err)
	}
	startedAt, err := strconv.ParseInt(r.PostFormValue("started_at"), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("started_at: %w", err)
	}
	endedAt, err := strconv.ParseInt(r.PostFormValue("ended_at"), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("ended_at: %w", err)
	}

	var replay []byte
	if raw := r.PostFormValue("replay"); raw != "" {
		replay, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return zero, fmt.Errorf("replay: %w", err)
		}
	}

	return usecase.SubmitInput{
		UserID:          userID,
		BeatmapHash:     strings.TrimSpace(r.PostFormValue("beatmap_hash")),
		Mode:            score.Mode(mode),
		Mods:            score.Mods(mods),
		TotalScore:      totalScore,
		Accuracy:        accuracy,
		MaxCombo:        legacyFormInt(r, "max_combo"),
		Count300:        legacyFormInt(r, "count_300"),
		Count100:        legacyFormInt(r, "count_100"),
		Count50:         legacyFormInt(r, "count_50"),
		CountGeki:       legacyFormInt(r, "count_geki"),
		CountKatu:       legacyFormInt(r, "count_katu"),
		CountMiss:       legacyFormInt(r, "count_miss"),
		Passed:          r.PostFormValue("passed") == "1",
		Perfect:         r.PostFormValue("perfect") == "1",
		SessionID:       strings.TrimSpace(r.PostFormValue("session_id")),
		SessionChecksum: strings.TrimSpace(r.PostFormValue("session_checksum")),
		Replay:          replay,
		StartedAt:       time.Unix(startedAt, 0).UTC(),
		EndedAt:         time.Unix(endedAt, 0).UTC(),
		FailedAtMs:      legacyFormInt(r, "failed_at_ms"),
	}, nil
}

func legacyFormInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.PostFormValue(key))
	return v
}

// legacyFailure collapses the rejection taxonomy into the markers the client
// understands. Anything it has no marker for becomes the generic "no".
func legacyFailure(err error) string {
	switch {
	case errors.Is(err, usecase.ErrDuplicate):
		return legacyErrDup
	case errors.Is(err, usecase.ErrRuleViolation):
		return legacyErrBan
	case errors.Is(err, usecase.ErrMaintenance):
		return legacyErrMaintenance
	default:
		return legacyErrNo
	}
}

// formatLegacyCharts renders the beatmap and overall charts. The client is
// strict about key order within a chart: rank, rankedScore, totalScore,
// maxCombo, accuracy, pp, each as a Before/After pair.
func formatLegacyCharts(res usecase.SubmissionResult) string {
	var b strings.Builder

	b.WriteString("chartId:beatmap|chartName:Beatmap Ranking|")
	writeLegacyChart(&b, res.Beatmap)
	b.WriteString("|onlineScoreId:")
	b.WriteString(strconv.FormatInt(res.ScoreID, 10))
	b.WriteString("\n")

	b.WriteString("chartId:overall|chartName:Overall Ranking|")
	writeLegacyChart(&b, res.Overall)
	b.WriteString("|achievements-new:")
	names := make([]string, 0, len(res.Unlocked))
	for _, m := range res.Unlocked {
		names = append(names, m.Name)
	}
	b.WriteString(strings.Join(names, "/"))

	return b.String()
}

func writeLegacyChart(b *strings.Builder, d usecase.Delta) {
	pairs := []struct {
		key           string
		before, after string
	}{
		{"rank", strconv.FormatInt(d.RankBefore, 10), strconv.FormatInt(d.RankAfter, 10)},
		{"rankedScore", strconv.FormatInt(d.RankedScoreBefore, 10), strconv.FormatInt(d.RankedScoreAfter, 10)},
		{"totalScore", strconv.FormatInt(d.TotalScoreBefore, 10), strconv.FormatInt(d.TotalScoreAfter, 10)},
		{"maxCombo", strconv.Itoa(d.MaxComboBefore), strconv.Itoa(d.MaxComboAfter)},
		{"accuracy", formatLegacyFloat(d.AccuracyBefore), formatLegacyFloat(d.AccuracyAfter)},
		{"pp", formatLegacyFloat(d.PPBefore), formatLegacyFloat(d.PPAfter)},
	}

	for i, p := range pairs {
		if i > 0 {
			b.WriteString("|")
		}
		b.WriteString(p.key)
		b.WriteString("Before:")
		b.WriteString(p.before)
		b.WriteString("|")
		b.WriteString(p.key)
		b.WriteString("After:")
		b.WriteString(p.after)
	}
}

func formatLegacyFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
