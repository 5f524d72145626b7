package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bestmove/formulary/db"
	"github.com/bestmove/formulary/internal/config"
	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/formula"
)

// runStats reports corpus size and the active weight table without
// touching the Gemini API.
func runStats() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	chunks, err := evidence.NewPGQuerier(pool).CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("counting evidence chunks: %w", err)
	}
	fmt.Printf("Evidence chunks: %d\n", chunks)

	weights, version, err := formula.NewPGQuerier(pool).LatestWeightTable(ctx, formula.DefaultTableName)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		fmt.Println("Weight table: not initialized (defaults will install on first run)")
	case err != nil:
		return fmt.Errorf("loading weight table: %w", err)
	default:
		fmt.Printf("Weight table %q: version %d\n", formula.DefaultTableName, version)
		var table formula.WeightTable
		if err := json.Unmarshal(weights, &table); err == nil {
			for _, mineral := range formula.Minerals {
				if mw, ok := table.Minerals[mineral]; ok {
					fmt.Printf("  %-10s base %.0fmg, max %.0fmg (%s)\n", mineral, mw.BaseDose, mw.MaxDose, mw.Form)
				}
			}
		}
	}

	var papers int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM ingested_papers`).Scan(&papers); err != nil {
		return fmt.Errorf("counting ingested papers: %w", err)
	}
	fmt.Printf("Ingested papers: %d\n", papers)
	return nil
}
