package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bestmove/formulary/internal/app"
	"github.com/bestmove/formulary/internal/config"
)

// runImprove runs one self-improvement batch over the test subjects.
func runImprove(args []string) error {
	fs := flag.NewFlagSet("improve", flag.ContinueOnError)
	subjectsPath := fs.String("subjects", "", "JSON file of test subjects (default: built-in cases)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := checkRequiredEnv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	subjects, err := LoadSubjects(*subjectsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	batch, err := a.Runner.Run(ctx, subjects)
	if batch != nil {
		fmt.Print(batch.Summary())
	}
	if err != nil {
		return fmt.Errorf("improvement batch: %w", err)
	}
	return nil
}
