// Package memory holds in-process repository implementations used in tests
// and single-node development mode. They honor the same contracts as the
// postgres implementations, including the atomic score-plus-statistics
// commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
)

type ScoreRepository struct {
	mu         sync.RWMutex
	nextID     int64
	scores     map[int64]score.Score
	byChecksum map[string]int64
	deleted    map[int64]bool

	statsRepo *StatsRepository
}

func NewScoreRepository(statsRepo *StatsRepository) *ScoreRepository {
	return &ScoreRepository{
		nextID:     1,
		scores:     make(map[int64]score.Score),
		byChecksum: make(map[string]int64),
		deleted:    make(map[int64]bool),
		statsRepo:  statsRepo,
	}
}

var _ score.Repository = (*ScoreRepository)(nil)

func (r *ScoreRepository) GetByChecksum(_ context.Context, checksum string) (score.Score, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byChecksum[checksum]
	if !ok || r.deleted[id] {
		return score.Score{}, false, nil
	}
	return r.scores[id], true, nil
}

func (r *ScoreRepository) GetByID(_ context.Context, id int64) (score.Score, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scores[id]
	if !ok || r.deleted[id] {
		return score.Score{}, false, nil
	}
	return s, true, nil
}

func (r *ScoreRepository) ListByBeatmap(_ context.Context, beatmapHash string, mode score.Mode) ([]score.Score, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s score.Score) bool {
		return s.BeatmapHash == beatmapHash && s.Mode == mode
	}), nil
}

func (r *ScoreRepository) ListByUserBeatmap(_ context.Context, userID int64, beatmapHash string, mode score.Mode) ([]score.Score, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s score.Score) bool {
		return s.UserID == userID && s.BeatmapHash == beatmapHash && s.Mode == mode
	}), nil
}

func (r *ScoreRepository) ListBestsByUser(_ context.Context, userID int64, mode score.Mode) ([]score.Score, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s score.Score) bool {
		return s.UserID == userID && s.Mode == mode && s.Status == score.StatusBest
	}), nil
}

func (r *ScoreRepository) InsertWithStatistics(ctx context.Context, s score.Score, st stats.UserStatistics, demote *score.StatusChange) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	s.ID = id
	r.scores[id] = s
	if s.Checksum != "" {
		r.byChecksum[s.Checksum] = id
	}

	if demote != nil {
		if prev, ok := r.scores[demote.ScoreID]; ok {
			prev.Status = demote.To
			r.scores[demote.ScoreID] = prev
		}
	}

	if r.statsRepo != nil {
		if err := r.statsRepo.Upsert(ctx, st); err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (r *ScoreRepository) UpdateStatus(_ context.Context, id int64, status score.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scores[id]
	if !ok || r.deleted[id] {
		return nil
	}
	s.Status = status
	r.scores[id] = s
	return nil
}

func (r *ScoreRepository) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted[id] = true
	return nil
}

func (r *ScoreRepository) collect(match func(score.Score) bool) []score.Score {
	var out []score.Score
	for id, s := range r.scores {
		if r.deleted[id] || !match(s) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
