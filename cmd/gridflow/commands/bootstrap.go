package commands

import (
	"fmt"

	"github.com/wonny/gridflow/internal/ingest/eia"
	"github.com/wonny/gridflow/internal/ingest/noaa"
	"github.com/wonny/gridflow/internal/ingest/pjm"
	"github.com/wonny/gridflow/internal/orchestrator"
	"github.com/wonny/gridflow/internal/ratelimit"
	"github.com/wonny/gridflow/internal/store"
	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/config"
	"github.com/wonny/gridflow/pkg/database"
	"github.com/wonny/gridflow/pkg/httputil"
	"github.com/wonny/gridflow/pkg/logger"
	"github.com/wonny/gridflow/pkg/redis"
)

// app holds the wired pipeline shared by the commands.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	store       *store.Store
	rules       *validate.Registry
	orch        *orchestrator.Orchestrator
	checkpoints *redis.Checkpoints

	db    *database.DB  // nil when the report archive is not configured
	cache *redis.Client // disabled stand-in when Redis is off
}

// newApp loads configuration and wires the full collection pipeline.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	rules, err := validate.Load(cfg.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("load rule sets: %w", err)
	}

	st, err := store.Open(cfg.StorageRoot, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	limiter := ratelimit.New()
	limiter.Register(pjm.SourceID, cfg.PJM.RateLimit)
	limiter.Register(noaa.SourceID, cfg.NOAA.RateLimit)
	limiter.Register(eia.SourceID, cfg.EIA.RateLimit)

	pjmCollector := pjm.NewCollector(
		pjm.NewClient(cfg, log, httputil.New(pjm.SourceID, cfg, log, limiter)))
	noaaCollector := noaa.NewCollector(
		noaa.NewClient(cfg, log, httputil.New(noaa.SourceID, cfg, log, limiter)),
		cfg.NOAA.Stations)
	eiaCollector := eia.NewCollector(
		eia.NewClient(cfg, log, httputil.New(eia.SourceID, cfg, log, limiter)),
		cfg.EIA.Series, cfg.EIA.Regions)

	orch := orchestrator.New(validate.NewEngine(log), rules, st, log)
	orch.Register(pjmCollector, cfg.PJM.Workers)
	orch.Register(noaaCollector, cfg.NOAA.Workers)
	orch.Register(eiaCollector, cfg.EIA.Workers)

	a := &app{
		cfg:   cfg,
		log:   log,
		store: st,
		rules: rules,
		orch:  orch,
	}

	cache, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.cache = cache
	a.checkpoints = redis.NewCheckpoints(cache, "gridflow")
	orch.WithCheckpoints(a.checkpoints)

	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		orch.WithReports(validate.NewRepository(db.Pool))
	}

	return a, nil
}

// reports returns the report archive repository, or nil when disabled.
func (a *app) reports() *validate.Repository {
	if a.db == nil {
		return nil
	}
	return validate.NewRepository(a.db.Pool)
}

// Close releases the app's connections.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}
