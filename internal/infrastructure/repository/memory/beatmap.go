package memory

import (
	"context"
	"sync"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
)

type BeatmapRepository struct {
	mu     sync.RWMutex
	byHash map[string]beatmap.Beatmap
}

func NewBeatmapRepository() *BeatmapRepository {
	return &BeatmapRepository{byHash: make(map[string]beatmap.Beatmap)}
}

var _ beatmap.Repository = (*BeatmapRepository)(nil)

// Put seeds or replaces a beatmap row.
func (r *BeatmapRepository) Put(b beatmap.Beatmap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[b.Hash] = b
}

func (r *BeatmapRepository) GetByHash(_ context.Context, hash string) (beatmap.Beatmap, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byHash[hash]
	return b, ok, nil
}
