// Package app wires configuration, stores, services and the HTTP surface
// into a runnable server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/rhythmnet/rhythmd/internal/config"
	"github.com/rhythmnet/rhythmd/internal/domain/beatmap"
	"github.com/rhythmnet/rhythmd/internal/domain/rank"
	"github.com/rhythmnet/rhythmd/internal/domain/score"
	"github.com/rhythmnet/rhythmd/internal/domain/stats"
	"github.com/rhythmnet/rhythmd/internal/domain/user"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/beatmapcache"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/moderation"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/notify"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/rankstore"
	repomemory "github.com/rhythmnet/rhythmd/internal/infrastructure/repository/memory"
	"github.com/rhythmnet/rhythmd/internal/infrastructure/repository/postgres"
	"github.com/rhythmnet/rhythmd/internal/interfaces/httpapi"
	idgen "github.com/rhythmnet/rhythmd/internal/platform/id"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
	"github.com/rhythmnet/rhythmd/internal/platform/resilience"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

// Application is the wired server plus the external resources it owns.
type Application struct {
	Server *http.Server

	logger *logging.Logger
	db     *sqlx.DB
	redis  *redis.Client
}

func New(cfg config.Config, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var (
		scores    score.Repository
		statsRepo stats.Repository
		users     user.Repository
		beatmaps  beatmap.Repository
		rankStore rank.Store

		db          *sqlx.DB
		redisClient *redis.Client
	)

	if cfg.MemoryMode {
		memStats := repomemory.NewStatsRepository()
		scores = repomemory.NewScoreRepository(memStats)
		statsRepo = memStats
		users = repomemory.NewUserRepository()
		beatmaps = repomemory.NewBeatmapRepository()
		rankStore = rankstore.NewMemory()
		logger.Info("memory mode enabled", "reason", "APP_MEMORY_MODE=true")
	} else {
		var err error
		db, err = otelsqlx.Connect("postgres", cfg.DBURL,
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		scoreRepo, err := postgres.NewScoreRepository(db)
		if err != nil {
			return nil, err
		}
		pgStats, err := postgres.NewStatsRepository(db)
		if err != nil {
			return nil, err
		}
		userRepo, err := postgres.NewUserRepository(db)
		if err != nil {
			return nil, err
		}
		beatmapRepo, err := postgres.NewBeatmapRepository(db)
		if err != nil {
			return nil, err
		}
		scores = scoreRepo
		statsRepo = pgStats
		users = userRepo
		beatmaps = beatmapRepo

		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rankStore, err = rankstore.NewRedis(redisClient)
		if err != nil {
			return nil, err
		}
	}

	beatmapSource, err := beatmapcache.New(beatmaps, cfg.BeatmapCacheTTL)
	if err != nil {
		return nil, err
	}

	tracker, err := usecase.NewRankTracker(rankStore, statsRepo, logger)
	if err != nil {
		return nil, err
	}

	moderationSvc, err := moderation.NewService(users, statsRepo, scores, beatmapSource, tracker, logger)
	if err != nil {
		return nil, err
	}

	var notifier usecase.Notifier
	if cfg.WebhookEnabled {
		breaker := resilience.NewCircuitBreaker(
			cfg.WebhookCircuitFailureCount,
			cfg.WebhookCircuitOpenTimeout,
			cfg.WebhookCircuitHalfOpenReq,
		)
		notifier, err = notify.NewWebhook(cfg.WebhookURL, breaker, logger)
		if err != nil {
			return nil, err
		}
	}

	flags := usecase.NewRuntimeFlags(cfg.MaintenanceMode)

	submissionSvc, err := usecase.NewSubmissionService(usecase.SubmissionConfig{
		Scores:    scores,
		Stats:     statsRepo,
		Users:     users,
		Beatmaps:  beatmapSource,
		Ranks:     tracker,
		Moderator: moderationSvc,
		Notifier:  notifier,
		Perf:      usecase.NewStarPerformanceCalculator(),
		IDs:       idgen.NewRandomGenerator(),
		Flags:     flags,
		Logger:    logger,
		PPCeiling: cfg.PPCeiling,
	})
	if err != nil {
		return nil, err
	}

	leaderboardSvc, err := usecase.NewLeaderboardService(scores, users, beatmapSource, logger)
	if err != nil {
		return nil, err
	}

	statsSvc, err := usecase.NewStatsService(statsRepo, users, tracker, logger)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewHandler(submissionSvc, leaderboardSvc, statsSvc, moderationSvc, flags, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins, cfg.AdminToken)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &Application{
		Server: server,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}, nil
}

// Close releases the store connections after the HTTP server has drained.
func (a *Application) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}

	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.ErrorContext(ctx, "close postgres", "error", err)
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.ErrorContext(ctx, "close redis", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
