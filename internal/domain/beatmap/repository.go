package beatmap

import "context"

type Repository interface {
	GetByHash(ctx context.Context, hash string) (Beatmap, bool, error)
}
