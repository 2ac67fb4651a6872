// Package beatmapcache fronts the beatmap repository with a TTL cache.
// Submission bursts against a popular map resolve its metadata once per TTL
// window instead of once per score.
package beatmapcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/platform/cache"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

var errUnknownBeatmap = errors.New("beatmap not found")

type Source struct {
	repo  beatmap.Repository
	cache *cache.Store
}

func New(repo beatmap.Repository, ttl time.Duration) (*Source, error) {
	if repo == nil {
		return nil, fmt.Errorf("beatmap repository is required")
	}
	return &Source{repo: repo, cache: cache.NewStore(ttl)}, nil
}

var _ usecase.BeatmapSource = (*Source)(nil)

func (s *Source) GetByHash(ctx context.Context, hash string) (beatmap.Beatmap, bool, error) {
	value, err := s.cache.GetOrLoad(ctx, "beatmap:"+hash, func(ctx context.Context) (any, error) {
		b, ok, loadErr := s.repo.GetByHash(ctx, hash)
		if loadErr != nil {
			return nil, loadErr
		}
		if !ok {
			// Absent maps are not cached; a late mirror sync may add them.
			return nil, errUnknownBeatmap
		}
		return b, nil
	})
	if errors.Is(err, errUnknownBeatmap) {
		return beatmap.Beatmap{}, false, nil
	}
	if err != nil {
		return beatmap.Beatmap{}, false, err
	}

	b, ok := value.(beatmap.Beatmap)
	if !ok {
		return beatmap.Beatmap{}, false, fmt.Errorf("unexpected cache entry type %T", value)
	}
	return b, true, nil
}

// Invalidate drops the cached entry after a mirror-driven status change.
func (s *Source) Invalidate(ctx context.Context, hash string) {
	s.cache.Delete(ctx, "beatmap:"+hash)
}
