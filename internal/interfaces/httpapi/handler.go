package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

// ModerationService is the admin-side surface behind the guarded routes.
type ModerationService interface {
	Restrict(ctx context.Context, userID int64, reason string) error
	Unrestrict(ctx context.Context, userID int64) error
	RemoveScore(ctx context.Context, scoreID int64) error
}

type Handler struct {
	submissionService  *usecase.SubmissionService
	leaderboardService *usecase.LeaderboardService
	statsService       *usecase.StatsService
	moderationService  ModerationService
	flags              *usecase.RuntimeFlags
	logger             *logging.Logger
	validator          *validator.Validate
}

func NewHandler(
	submissionService *usecase.SubmissionService,
	leaderboardService *usecase.LeaderboardService,
	statsService *usecase.StatsService,
	moderationService ModerationService,
	flags *usecase.RuntimeFlags,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		submissionService:  submissionService,
		leaderboardService: leaderboardService,
		statsService:       statsService,
		moderationService:  moderationService,
		flags:              flags,
		logger:             logger,
		validator:          validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SubmitScore")
	defer span.End()

	var req submitScoreRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidRequest, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.submissionService.Submit(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "score submission rejected",
			"user_id", req.UserID, "beatmap_hash", req.BeatmapHash, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, submissionResultToDTO(ctx, result))
}

func (h *Handler) GetBeatmapLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetBeatmapLeaderboard")
	defer span.End()

	beatmapHash := strings.TrimSpace(r.PathValue("hash"))
	query := r.URL.Query()

	mode, err := parseModeParam(query.Get("mode"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var mods *score.Mods
	if raw := strings.TrimSpace(query.Get("mods")); raw != "" {
		mask, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: invalid mods %q", usecase.ErrInvalidRequest, raw))
			return
		}
		m := score.Mods(mask)
		mods = &m
	}

	limit, err := parseOptionalInt(query.Get("limit"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid limit", usecase.ErrInvalidRequest))
		return
	}
	requesterID, err := parseOptionalInt64(query.Get("user_id"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid user_id", usecase.ErrInvalidRequest))
		return
	}

	page, err := h.leaderboardService.GetBeatmapLeaderboard(ctx, beatmapHash, mode, mods, limit, requesterID)
	if err != nil {
		h.logger.WarnContext(ctx, "leaderboard read failed",
			"beatmap_hash", beatmapHash, "mode", mode, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, leaderboardPageToDTO(ctx, page))
}

func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetUserStats")
	defer span.End()

	userID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("userID")), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid user id", usecase.ErrInvalidRequest))
		return
	}
	mode, err := parseModeParam(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := h.statsService.GetUserStats(ctx, userID, mode)
	if err != nil {
		h.logger.WarnContext(ctx, "stats read failed", "user_id", userID, "mode", mode, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, userStatsToDTO(ctx, view))
}

func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SetMaintenance")
	defer span.End()

	var req maintenanceRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidRequest, err))
		return
	}

	h.flags.SetMaintenance(req.Enabled)
	h.logger.InfoContext(ctx, "maintenance flag changed", "enabled", req.Enabled)

	writeSuccess(ctx, w, http.StatusOK, maintenanceDTO{Enabled: h.flags.Maintenance()})
}

func (h *Handler) RestrictUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RestrictUser")
	defer span.End()

	userID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("userID")), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid user id", usecase.ErrInvalidRequest))
		return
	}

	var req restrictUserRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidRequest, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.moderationService.Restrict(ctx, userID, req.Reason); err != nil {
		h.logger.WarnContext(ctx, "restrict failed", "user_id", userID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"restricted": true})
}

func (h *Handler) UnrestrictUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UnrestrictUser")
	defer span.End()

	userID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("userID")), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid user id", usecase.ErrInvalidRequest))
		return
	}

	if err := h.moderationService.Unrestrict(ctx, userID); err != nil {
		h.logger.WarnContext(ctx, "unrestrict failed", "user_id", userID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"restricted": false})
}

func (h *Handler) RemoveScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RemoveScore")
	defer span.End()

	scoreID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("scoreID")), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid score id", usecase.ErrInvalidRequest))
		return
	}

	if err := h.moderationService.RemoveScore(ctx, scoreID); err != nil {
		h.logger.WarnContext(ctx, "score removal failed", "score_id", scoreID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"removed": true})
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidRequest, err)
	}

	return nil
}

func parseModeParam(raw string) (score.Mode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return score.ModeStandard, nil
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil || !score.Mode(v).Valid() {
		return 0, fmt.Errorf("%w: invalid mode %q", usecase.ErrInvalidRequest, raw)
	}
	return score.Mode(v), nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseOptionalInt64(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

type submitScoreRequest struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	BeatmapHash string `json:"beatmap_hash" validate:"required,len=32"`
	Mode        uint8  `json:"mode" validate:"lt=4"`
	Mods        uint32 `json:"mods"`

	TotalScore int64   `json:"total_score" validate:"gte=0"`
	Accuracy   float64 `json:"accuracy" validate:"gte=0,lte=100"`
	MaxCombo   int     `json:"max_combo" validate:"gte=0"`
	Count300   int     `json:"count_300" validate:"gte=0"`
	Count100   int     `json:"count_100" validate:"gte=0"`
	Count50    int     `json:"count_50" validate:"gte=0"`
	CountGeki  int     `json:"count_geki" validate:"gte=0"`
	CountKatu  int     `json:"count_katu" validate:"gte=0"`
	CountMiss  int     `json:"count_miss" validate:"gte=0"`
	Passed     bool    `json:"passed"`
	Perfect    bool    `json:"perfect"`

	SessionID       string `json:"session_id" validate:"required"`
	SessionChecksum string `json:"session_checksum" validate:"required,len=32"`

	// Replay is the base64-encoded replay stream; required on passed scores.
	Replay     string `json:"replay"`
	StartedAt  string `json:"started_at" validate:"required"`
	EndedAt    string `json:"ended_at" validate:"required"`
	FailedAtMs int    `json:"failed_at_ms" validate:"gte=0"`
}

func (req submitScoreRequest) toInput() (usecase.SubmitInput, error) {
	startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
	if err != nil {
		return usecase.SubmitInput{}, fmt.Errorf("%w: invalid started_at: %v", usecase.ErrInvalidRequest, err)
	}
	endedAt, err := time.Parse(time.RFC3339, req.EndedAt)
	if err != nil {
		return usecase.SubmitInput{}, fmt.Errorf("%w: invalid ended_at: %v", usecase.ErrInvalidRequest, err)
	}

	var replay []byte
	if req.Replay != "" {
		replay, err = base64.StdEncoding.DecodeString(req.Replay)
		if err != nil {
			return usecase.SubmitInput{}, fmt.Errorf("%w: invalid replay encoding: %v", usecase.ErrInvalidRequest, err)
		}
	}

	return usecase.SubmitInput{
		UserID:          req.UserID,
		BeatmapHash:     req.BeatmapHash,
		Mode:            score.Mode(req.Mode),
		Mods:            score.Mods(req.Mods),
		TotalScore:      req.TotalScore,
		Accuracy:        req.Accuracy,
		MaxCombo:        req.MaxCombo,
		Count300:        req.Count300,
		Count100:        req.Count100,
		Count50:         req.Count50,
		CountGeki:       req.CountGeki,
		CountKatu:       req.CountKatu,
		CountMiss:       req.CountMiss,
		Passed:          req.Passed,
		Perfect:         req.Perfect,
		SessionID:       req.SessionID,
		SessionChecksum: req.SessionChecksum,
		Replay:          replay,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		FailedAtMs:      req.FailedAtMs,
	}, nil
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

type restrictUserRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type maintenanceDTO struct {
	Enabled bool `json:"enabled"`
}

type deltaDTO struct {
	RankBefore        int64   `json:"rankBefore"`
	RankAfter         int64   `json:"rankAfter"`
	RankedScoreBefore int64   `json:"rankedScoreBefore"`
	RankedScoreAfter  int64   `json:"rankedScoreAfter"`
	TotalScoreBefore  int64   `json:"totalScoreBefore"`
	TotalScoreAfter   int64   `json:"totalScoreAfter"`
	MaxComboBefore    int     `json:"maxComboBefore"`
	MaxComboAfter     int     `json:"maxComboAfter"`
	AccuracyBefore    float64 `json:"accuracyBefore"`
	AccuracyAfter     float64 `json:"accuracyAfter"`
	PPBefore          float64 `json:"ppBefore"`
	PPAfter           float64 `json:"ppAfter"`
}

type medalDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type submissionResultDTO struct {
	ScoreID    int64      `json:"scoreId"`
	Status     string     `json:"status"`
	PP         float64    `json:"pp"`
	Beatmap    deltaDTO   `json:"beatmapChart"`
	Overall    deltaDTO   `json:"overallChart"`
	FirstPlace bool       `json:"firstPlace"`
	Unlocked   []medalDTO `json:"unlockedMedals"`
}

type scoreDTO struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"userId"`
	Mods       uint32  `json:"mods"`
	TotalScore int64   `json:"totalScore"`
	PP         float64 `json:"pp"`
	Accuracy   float64 `json:"accuracy"`
	MaxCombo   int     `json:"maxCombo"`
	Perfect    bool    `json:"perfect"`
	PlayedAt   string  `json:"playedAt"`
}

type leaderboardEntryDTO struct {
	Position int      `json:"position"`
	UserID   int64    `json:"userId"`
	UserName string   `json:"userName"`
	Country  string   `json:"country"`
	Score    scoreDTO `json:"score"`
}

type leaderboardPageDTO struct {
	BeatmapHash string                `json:"beatmapHash"`
	Mode        string                `json:"mode"`
	Total       int                   `json:"total"`
	Entries     []leaderboardEntryDTO `json:"entries"`
	Requester   *leaderboardEntryDTO  `json:"requester,omitempty"`
}

type userStatsDTO struct {
	UserID      int64   `json:"userId"`
	UserName    string  `json:"userName"`
	Country     string  `json:"country"`
	Mode        string  `json:"mode"`
	TotalScore  int64   `json:"totalScore"`
	RankedScore int64   `json:"rankedScore"`
	PlayCount   int     `json:"playCount"`
	Accuracy    float64 `json:"accuracy"`
	PP          float64 `json:"pp"`
	MaxCombo    int     `json:"maxCombo"`
	TotalHits   int64   `json:"totalHits"`
	PlayTimeSec int64   `json:"playTimeSec"`
	GlobalRank  int64   `json:"globalRank"`
	CountryRank int64   `json:"countryRank"`

	BestGlobalRank    int64  `json:"bestGlobalRank,omitempty"`
	BestGlobalRankAt  string `json:"bestGlobalRankAt,omitempty"`
	BestCountryRank   int64  `json:"bestCountryRank,omitempty"`
	BestCountryRankAt string `json:"bestCountryRankAt,omitempty"`
}

func deltaToDTO(v usecase.Delta) deltaDTO {
	return deltaDTO{
		RankBefore:        v.RankBefore,
		RankAfter:         v.RankAfter,
		RankedScoreBefore: v.RankedScoreBefore,
		RankedScoreAfter:  v.RankedScoreAfter,
		TotalScoreBefore:  v.TotalScoreBefore,
		TotalScoreAfter:   v.TotalScoreAfter,
		MaxComboBefore:    v.MaxComboBefore,
		MaxComboAfter:     v.MaxComboAfter,
		AccuracyBefore:    v.AccuracyBefore,
		AccuracyAfter:     v.AccuracyAfter,
		PPBefore:          v.PPBefore,
		PPAfter:           v.PPAfter,
	}
}

func submissionResultToDTO(ctx context.Context, v usecase.SubmissionResult) submissionResultDTO {
	ctx, span := startSpan(ctx, "httpapi.submissionResultToDTO")
	defer span.End()

	unlocked := make([]medalDTO, 0, len(v.Unlocked))
	for _, m := range v.Unlocked {
		unlocked = append(unlocked, medalDTO{ID: m.ID, Name: m.Name})
	}

	return submissionResultDTO{
		ScoreID:    v.ScoreID,
		Status:     v.Status.String(),
		PP:         v.PP,
		Beatmap:    deltaToDTO(v.Beatmap),
		Overall:    deltaToDTO(v.Overall),
		FirstPlace: v.FirstPlace,
		Unlocked:   unlocked,
	}
}

func scoreToDTO(v score.Score) scoreDTO {
	return scoreDTO{
		ID:         v.ID,
		UserID:     v.UserID,
		Mods:       uint32(v.Mods),
		TotalScore: v.TotalScore,
		PP:         v.PP,
		Accuracy:   v.Accuracy,
		MaxCombo:   v.MaxCombo,
		Perfect:    v.Perfect,
		PlayedAt:   v.PlayedAt.UTC().Format(time.RFC3339),
	}
}

func leaderboardEntryToDTO(v usecase.LeaderboardEntry) leaderboardEntryDTO {
	return leaderboardEntryDTO{
		Position: v.Position,
		UserID:   v.UserID,
		UserName: v.UserName,
		Country:  v.Country,
		Score:    scoreToDTO(v.Score),
	}
}

func leaderboardPageToDTO(ctx context.Context, v usecase.LeaderboardPage) leaderboardPageDTO {
	ctx, span := startSpan(ctx, "httpapi.leaderboardPageToDTO")
	defer span.End()

	entries := make([]leaderboardEntryDTO, 0, len(v.Entries))
	for _, e := range v.Entries {
		entries = append(entries, leaderboardEntryToDTO(e))
	}

	out := leaderboardPageDTO{
		BeatmapHash: v.BeatmapHash,
		Mode:        v.Mode.String(),
		Total:       v.Total,
		Entries:     entries,
	}
	if v.Requester != nil {
		held := leaderboardEntryToDTO(*v.Requester)
		out.Requester = &held
	}

	return out
}

func userStatsToDTO(ctx context.Context, v usecase.UserStats) userStatsDTO {
	ctx, span := startSpan(ctx, "httpapi.userStatsToDTO")
	defer span.End()

	dto := userStatsDTO{
		UserID:      v.UserID,
		UserName:    v.UserName,
		Country:     v.Country,
		Mode:        v.Mode.String(),
		TotalScore:  v.Statistics.TotalScore,
		RankedScore: v.Statistics.RankedScore,
		PlayCount:   v.Statistics.PlayCount,
		Accuracy:    v.Statistics.Accuracy,
		PP:          v.Statistics.PP,
		MaxCombo:    v.Statistics.MaxCombo,
		TotalHits:   v.Statistics.TotalHits,
		PlayTimeSec: int64(v.Statistics.PlayTime.Seconds()),
		GlobalRank:  v.GlobalRank,
		CountryRank: v.CountryRank,
	}
	if v.Statistics.HasBestGlobalRank() {
		dto.BestGlobalRank = v.Statistics.BestGlobalRank
		dto.BestGlobalRankAt = v.Statistics.BestGlobalRankAt.UTC().Format(time.RFC3339)
	}
	if v.Statistics.HasBestCountryRank() {
		dto.BestCountryRank = v.Statistics.BestCountryRank
		dto.BestCountryRankAt = v.Statistics.BestCountryRankAt.UTC().Format(time.RFC3339)
	}

	return dto
}
