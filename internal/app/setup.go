package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bestmove/formulary/db"
	"github.com/bestmove/formulary/internal/adjust"
	"github.com/bestmove/formulary/internal/config"
	"github.com/bestmove/formulary/internal/evaluate"
	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/formula"
	"github.com/bestmove/formulary/internal/gapfill"
	"github.com/bestmove/formulary/internal/improve"
	"github.com/bestmove/formulary/internal/oracle"
	"github.com/bestmove/formulary/internal/pmc"
	"github.com/bestmove/formulary/internal/reflection"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Closing the app cancels this context, which unblocks any
	// in-flight pool or oracle calls during teardown.
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Config: cfg, logger: logger, cancel: cancel}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Evidence = evidence.New(evidence.NewPGQuerier(pool), embedder, logger.With("component", "evidence"))
	a.Oracle = oracle.New(g, cfg.FullModelName(), logger.With("component", "oracle"))
	a.WeightStore = formula.NewStore(formula.NewPGQuerier(pool), formula.DefaultTableName, logger.With("component", "weights"))
	a.Engine = formula.NewEngine(formula.DefaultWeightTable(), logger.With("component", "engine"))

	evaluator := evaluate.New(a.Evidence, a.Oracle, evaluate.Config{
		TopK:         cfg.TopK,
		QueryTimeout: time.Duration(cfg.Loop.QueryTimeoutSeconds) * time.Second,
	}, logger.With("component", "evaluator"))

	pmcClient := pmc.New(cfg.PMC.BaseURL, cfg.PMC.Email, cfg.PMC.APIKey, logger.With("component", "pmc"))
	filler := gapfill.New(
		pmcClient,
		a.Evidence,
		gapfill.NewPGTracker(pool),
		gapfill.NewChecker(a.Oracle, logger.With("component", "quality")),
		gapfill.Config{
			ArtifactDir:  cfg.PMC.ArtifactDir,
			ReportPath:   cfg.PMC.ReportPath,
			PapersPerGap: cfg.PMC.MaxPapersPerGap,
		},
		logger.With("component", "gapfill"),
	)

	a.Runner = improve.New(
		a.Engine,
		a.WeightStore,
		evaluator,
		adjust.New(logger.With("component", "adjuster")),
		reflection.New(a.Oracle, logger.With("component", "reflector")),
		filler,
		improve.Config{
			MaxIterations:      cfg.Loop.MaxIterations,
			RerunMaxIterations: cfg.Loop.RerunMaxIterations,
		},
		logger.With("component", "runner"),
	)

	return a, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Gemini provider. The
// plugin reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}
