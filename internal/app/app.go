// Package app provides application initialization and dependency
// wiring.
//
// App is the container that connects the layers: Postgres pool and
// migrations, Genkit with the Gemini provider, the evidence store,
// the grading oracle, the formulation engine with its persisted weight
// table, and the improvement runner on top of all of them.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bestmove/formulary/internal/config"
	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/formula"
	"github.com/bestmove/formulary/internal/improve"
	"github.com/bestmove/formulary/internal/oracle"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Evidence    *evidence.Store
	Oracle      *oracle.Client
	WeightStore *formula.Store
	Engine      *formula.Engine
	Runner      *improve.Runner

	logger *slog.Logger
	cancel context.CancelFunc
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		if a.logger != nil {
			a.logger.Info("database pool closed")
		}
	}

	return nil
}
