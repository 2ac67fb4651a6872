package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc"

	"github.com/rhythmnet/rhythmd/internal/domain/rank"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

const cascadeWorkers = 8

// RankTracker keeps the ordered-set leaderboards in step with the record
// store and maintains the tighten-only best-rank history. Every mutation
// cascades to the members whose positions changed, so best ranks are
// captured the moment they occur rather than on the user's next login.
type RankTracker struct {
	store  rank.Store
	stats  stats.Repository
	logger *logging.Logger
	now    func() time.Time

	// repairMu serializes cold-entry repair so a burst of lookups for the
	// same missing user performs one rebuild, not a stampede.
	repairMu sync.Mutex
}

func NewRankTracker(store rank.Store, statsRepo stats.Repository, logger *logging.Logger) (*RankTracker, error) {
	if store == nil {
		return nil, fmt.Errorf("rank store is required")
	}
	if statsRepo == nil {
		return nil, fmt.Errorf("statistics repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &RankTracker{
		store:  store,
		stats:  statsRepo,
		logger: logger,
		now:    time.Now,
	}, nil
}

// GetRanks returns the user's 1-indexed global and country ranks for a mode.
// A missing entry triggers one repair-and-retry; any remaining failure
// degrades that rank to the Unranked sentinel instead of erroring.
func (t *RankTracker) GetRanks(ctx context.Context, u user.User, mode uint8) (int64, int64) {
	ctx, span := startUsecaseSpan(ctx, "RankTracker.GetRanks")
	defer span.End()

	globalKey := rank.GlobalKey(mode)
	countryKey := rank.CountryKey(mode, u.Country)

	globalPos, globalOK, globalErr := t.store.Position(ctx, globalKey, u.ID)
	countryPos, countryOK, countryErr := t.store.Position(ctx, countryKey, u.ID)

	if globalErr == nil && countryErr == nil && (!globalOK || !countryOK) {
		if err := t.repair(ctx, u, mode); err != nil {
			t.logger.ErrorContext(ctx, "leaderboard entry repair failed",
				"user_id", u.ID, "mode", mode, "error", err)
			return rank.Unranked, rank.Unranked
		}

		globalPos, globalOK, globalErr = t.store.Position(ctx, globalKey, u.ID)
		countryPos, countryOK, countryErr = t.store.Position(ctx, countryKey, u.ID)
		if !globalOK || !countryOK {
			t.logger.ErrorContext(ctx, "leaderboard entry missing after repair",
				"user_id", u.ID, "mode", mode, "error", ErrInconsistent)
		}
	}

	globalRank := rank.Unranked
	if globalErr == nil && globalOK {
		globalRank = globalPos + 1
	}
	countryRank := rank.Unranked
	if countryErr == nil && countryOK {
		countryRank = countryPos + 1
	}
	if globalErr != nil || countryErr != nil {
		t.logger.WarnContext(ctx, "rank lookup degraded",
			"user_id", u.ID, "mode", mode,
			"global_error", globalErr, "country_error", countryErr)
	}

	return globalRank, countryRank
}

// UpsertScore publishes the user's new aggregate value to both leaderboards
// and cascades best-rank updates to everyone the write displaced.
func (t *RankTracker) UpsertScore(ctx context.Context, st stats.UserStatistics, u user.User) error {
	ctx, span := startUsecaseSpan(ctx, "RankTracker.UpsertScore")
	defer span.End()

	return t.apply(ctx, st, u, false)
}

// RemoveScore drops the user from both leaderboards. Everyone below the
// vacated position moves up, so the cascade runs through the end of the set.
func (t *RankTracker) RemoveScore(ctx context.Context, st stats.UserStatistics, u user.User) error {
	ctx, span := startUsecaseSpan(ctx, "RankTracker.RemoveScore")
	defer span.End()

	return t.apply(ctx, st, u, true)
}

func (t *RankTracker) apply(ctx context.Context, st stats.UserStatistics, u user.User, remove bool) error {
	value := st.PP
	if u.Restricted {
		value = rank.RestrictedValue
	}

	legs := []struct {
		key  string
		kind stats.RankKind
	}{
		{key: rank.GlobalKey(st.Mode), kind: stats.RankGlobal},
		{key: rank.CountryKey(st.Mode, u.Country), kind: stats.RankCountry},
	}

	errs := make([]error, len(legs))
	var wg conc.WaitGroup
	for i, leg := range legs {
		wg.Go(func() {
			errs[i] = t.applyLeg(ctx, leg.key, leg.kind, u, st.Mode, value, remove)
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}

	return nil
}

// applyLeg mutates one ordered set and repairs the best ranks of the members
// whose positions the mutation changed. After an upsert that moved the user
// down from prevPos to newPos, exactly the members now at [prevPos, newPos-1]
// shifted up one place; after a removal everyone from prevPos onward did.
func (t *RankTracker) applyLeg(ctx context.Context, key string, kind stats.RankKind, u user.User, mode uint8, value float64, remove bool) error {
	prevPos, hadPrev, err := t.store.Position(ctx, key, u.ID)
	if err != nil {
		return fmt.Errorf("read position on %s: %w", key, err)
	}

	if remove {
		if err := t.store.Remove(ctx, key, u.ID); err != nil {
			return fmt.Errorf("remove member from %s: %w", key, err)
		}
		if hadPrev {
			return t.cascade(ctx, key, kind, u.ID, mode, prevPos, -1)
		}
		return nil
	}

	if err := t.store.Upsert(ctx, key, u.ID, value); err != nil {
		return fmt.Errorf("upsert member on %s: %w", key, err)
	}
	newPos, ok, err := t.store.Position(ctx, key, u.ID)
	if err != nil {
		return fmt.Errorf("read position on %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: member absent after upsert on %s", ErrInconsistent, key)
	}

	if hadPrev && newPos > prevPos {
		if err := t.cascade(ctx, key, kind, u.ID, mode, prevPos, newPos-1); err != nil {
			return err
		}
	}

	if !u.Restricted {
		if err := t.stats.TightenBestRank(ctx, u.ID, mode, kind, newPos+1, t.now()); err != nil {
			return fmt.Errorf("tighten best rank on %s: %w", key, err)
		}
	}

	return nil
}

// cascade reads the displaced range once and fans the tighten-only writes out
// over a bounded pool. A member at offset j of the range occupies position
// from+j, so its candidate rank is from+j+1. Individual write failures are
// logged and skipped; tighten-only writes make the next cascade re-apply them
// safely.
func (t *RankTracker) cascade(ctx context.Context, key string, kind stats.RankKind, movedUserID int64, mode uint8, from, to int64) error {
	members, err := t.store.RangeByPosition(ctx, key, from, to)
	if err != nil {
		return fmt.Errorf("range %s [%d,%d]: %w", key, from, to, err)
	}
	if len(members) == 0 {
		return nil
	}

	pool, err := ants.NewPool(cascadeWorkers)
	if err != nil {
		return fmt.Errorf("create cascade pool: %w", err)
	}
	defer pool.Release()

	at := t.now()
	var wg sync.WaitGroup
	for i, m := range members {
		if m.UserID == movedUserID || m.Value < 0 {
			continue
		}

		candidate := from + int64(i) + 1
		member := m
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := t.stats.TightenBestRank(ctx, member.UserID, mode, kind, candidate, at); err != nil {
				t.logger.WarnContext(ctx, "cascade best-rank write failed",
					"key", key, "user_id", member.UserID, "rank", candidate, "error", err)
			}
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return nil
}

func (t *RankTracker) repair(ctx context.Context, u user.User, mode uint8) error {
	t.repairMu.Lock()
	defer t.repairMu.Unlock()

	st, ok, err := t.stats.GetByUserMode(ctx, u.ID, mode)
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}
	if !ok {
		st = stats.UserStatistics{UserID: u.ID, Mode: mode}
		if err := t.stats.Upsert(ctx, st); err != nil {
			return fmt.Errorf("create statistics row: %w", err)
		}
	}

	value := st.PP
	if u.Restricted {
		value = rank.RestrictedValue
	}

	if err := t.store.Upsert(ctx, rank.GlobalKey(mode), u.ID, value); err != nil {
		return fmt.Errorf("repair global entry: %w", err)
	}
	if err := t.store.Upsert(ctx, rank.CountryKey(mode, u.Country), u.ID, value); err != nil {
		return fmt.Errorf("repair country entry: %w", err)
	}

	return nil
}
