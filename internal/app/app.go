// Package app wires configuration into the storage, data client and
// service graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/providers"
	"github.com/stitts-dev/nba-projections/internal/services"
	"github.com/stitts-dev/nba-projections/pkg/cache"
	"github.com/stitts-dev/nba-projections/pkg/config"
	"github.com/stitts-dev/nba-projections/pkg/database"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// Data source names accepted in DATA_SOURCES
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
	SourceLocal    = "local"
)

type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Manager
	DB      *database.DB
	Redis   *redis.Client

	Games     *ingestion.Store
	Artifacts *ml.GormArtifactStore
	Client    *datasource.Client
	Engineer  *features.Engineer
	Predictor *ml.EnsemblePredictor

	Predictions *services.PredictionService
	Rankings    *services.RankingService
	Training    *services.TrainingService
	Ingestion   *services.IngestionService
	Backtests   *services.BacktestService
	Scheduler   *services.Scheduler
}

// New opens storage, builds the source chain and every service. Redis is
// optional: when it cannot be reached the caches fall back to memory and
// slates are not published.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, m *metrics.Manager) (*App, error) {
	a := &App{Config: cfg, Logger: log, Metrics: m}

	db, err := database.NewConnection(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	a.Games = ingestion.NewStore(db, log)
	a.Artifacts = ml.NewGormArtifactStore(db, log)
	if err := a.Games.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate game store: %w", err)
	}
	if err := a.Artifacts.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate model registry: %w", err)
	}

	responses, predictions := a.caches(ctx)

	sources, err := a.sources()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Client, err = datasource.NewClient(clientConfig(cfg), responses, sources,
		datasource.WithLogger(log), datasource.WithMetrics(m))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build data client: %w", err)
	}

	a.Engineer = features.NewEngineer(log)
	a.Predictor = ml.NewEnsemblePredictor(nil, nil, log)

	svcCfg := services.DefaultServiceConfig()
	svcCfg.Season = cfg.Season
	svcCfg.SeasonStart = cfg.SeasonStartDate()
	svcCfg.AllStarBreak = cfg.AllStarBreakDate()
	if len(cfg.PredictedStatistics) > 0 {
		for _, stat := range cfg.PredictedStatistics {
			if !models.IsTrackedStatistic(stat) {
				a.Close()
				return nil, fmt.Errorf("%w in PREDICTED_STATISTICS: %s", models.ErrUnknownStatistic, stat)
			}
		}
		svcCfg.Statistics = cfg.PredictedStatistics
	}
	if cfg.PredictionCacheTTL > 0 {
		svcCfg.CacheTTL = cfg.PredictionCacheTTL
	}
	svcCfg.Workers = cfg.PredictionWorkers
	if svcCfg.Workers <= 0 {
		svcCfg.Workers = runtime.NumCPU()
	}
	if cfg.BreakoutThreshold > 0 {
		svcCfg.BreakoutThreshold = cfg.BreakoutThreshold
	}

	a.Predictions = services.NewPredictionService(a.Client, a.Predictor, a.Engineer, predictions, svcCfg, log, m)
	if a.Redis != nil && cfg.PredictionsChannel != "" {
		a.Predictions.SetPublisher(services.NewRedisPublisher(a.Redis, cfg.PredictionsChannel, log))
	}

	a.Rankings = services.NewRankingService(a.Client, cfg.Season, cfg.MinGamesPlayed, log)

	train := ml.DefaultTrainConfig()
	a.Training = services.NewTrainingService(a.Games, a.Engineer, a.Artifacts, a.Predictor, services.TrainingConfig{
		Season:       cfg.Season,
		SeasonStart:  svcCfg.SeasonStart,
		AllStarBreak: svcCfg.AllStarBreak,
		Statistics:   svcCfg.Statistics,
		WindowDays:   cfg.TrainWindowDays,
		Train:        train,
	}, log)
	a.Ingestion = services.NewIngestionService(a.Client, ingestion.NewIngestor(a.Games, log), a.Games, cfg.Season, 4, log)
	a.Ingestion.SetOutcomeRecorder(a.Predictions)
	a.Backtests = services.NewBacktestService(a.Training, train, log, m)

	a.Scheduler = services.NewScheduler(log, m)
	return a, nil
}

// LoadModels swaps in the production models from the registry. A registry
// with no models is not an error; predictions answer ModelUnavailable until
// the first retrain.
func (a *App) LoadModels(ctx context.Context) error {
	if err := a.Training.LoadProduction(ctx); err != nil {
		return fmt.Errorf("failed to load production models: %w", err)
	}
	loaded := a.Predictor.Registry().Statistics()
	if len(loaded) == 0 {
		a.Logger.Warn("No production models in the registry; run a retrain before serving predictions")
	}
	return nil
}

// StartScheduler registers the periodic jobs and starts the cron runner.
func (a *App) StartScheduler() error {
	err := a.Scheduler.RegisterDefaults(services.Schedules{
		Ingest:     a.Config.IngestSchedule,
		Warm:       a.Config.WarmSchedule,
		Retrain:    a.Config.RetrainSchedule,
		Population: a.Config.PopulationSchedule,
	}, a.Ingestion, a.Predictions, a.Training, a.Rankings)
	if err != nil {
		return err
	}
	return a.Scheduler.Start()
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func (a *App) caches(ctx context.Context) (responses, predictions cache.Store) {
	if a.Config.UseRedisCache && a.Config.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, a.Config.RedisURL)
		if err == nil {
			a.Redis = client
			return cache.NewRedisStore(client, "nba:responses:"), cache.NewRedisStore(client, "nba:")
		}
		a.Logger.WithError(err).Warn("Redis unavailable, using in-memory caches")
	}
	return cache.NewMemoryStore(), cache.NewMemoryStore()
}

func (a *App) sources() ([]datasource.Source, error) {
	cfg := a.Config
	var out []datasource.Source
	for _, name := range cfg.DataSources {
		switch name {
		case SourcePrimary:
			out = append(out, providers.NewBallDontLieSource(SourcePrimary, cfg.PrimaryStatsURL, cfg.PrimaryStatsAPIKey, cfg.ExternalAPITimeout, a.Logger))
		case SourceFallback:
			if cfg.FallbackStatsURL == "" {
				a.Logger.Debug("FALLBACK_STATS_URL not set, skipping fallback source")
				continue
			}
			out = append(out, providers.NewBallDontLieSource(SourceFallback, cfg.FallbackStatsURL, cfg.PrimaryStatsAPIKey, cfg.ExternalAPITimeout, a.Logger))
		case SourceLocal:
			out = append(out, providers.NewStoreSource(SourceLocal, a.Games))
		default:
			return nil, fmt.Errorf("unknown data source %q in DATA_SOURCES", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("DATA_SOURCES lists no usable source")
	}
	return out, nil
}

func clientConfig(cfg *config.Config) datasource.Config {
	dc := datasource.DefaultConfig()
	if cfg.CircuitBreakerThreshold > 0 {
		dc.FailureThreshold = cfg.CircuitBreakerThreshold
	}
	if cfg.CircuitBreakerWindow > 0 {
		dc.FailureWindow = cfg.CircuitBreakerWindow
	}
	if cfg.CircuitBreakerCoolDown > 0 {
		dc.CoolDown = cfg.CircuitBreakerCoolDown
	}
	if cfg.MaxRetries >= 0 {
		dc.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		dc.RetryBaseDelay = cfg.RetryBaseDelay
	}
	if cfg.ResponseCacheTTL > 0 {
		dc.ResponseTTL = cfg.ResponseCacheTTL
	}
	if cfg.StaleRetention > 0 {
		dc.StaleRetention = cfg.StaleRetention
	}
	dc.RateLimit = cfg.SourceRateLimit
	dc.Burst = cfg.SourceBurst
	return dc
}
