// Package improve drives the self-tuning cycle: score a
// recommendation against the evidence corpus, adjust the weight table,
// keep the change only when the score strictly rises, and persist the
// winning weights. After a batch it aggregates reflection gaps, feeds
// them to the gap filler, and re-runs the batch once when new evidence
// actually lands.
package improve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bestmove/formulary/internal/evaluate"
	"github.com/bestmove/formulary/internal/formula"
	"github.com/bestmove/formulary/internal/gapfill"
	"github.com/bestmove/formulary/internal/reflection"
)

// maxRerunDepth bounds the evidence-driven batch re-run to one level.
const maxRerunDepth = 1

// WeightStore persists the weight table between runs.
type WeightStore interface {
	Load(ctx context.Context) (*formula.WeightTable, error)
	Save(ctx context.Context, table *formula.WeightTable) error
}

// Evaluator scores a recommendation against the evidence corpus.
type Evaluator interface {
	Evaluate(ctx context.Context, profile formula.Profile, rec formula.Recommendation) evaluate.Result
}

// Adjuster translates one improvement suggestion into a weight
// mutation.
type Adjuster interface {
	Apply(table *formula.WeightTable, imp evaluate.Improvement, profile formula.Profile) (string, bool)
}

// Reflector produces the post-case meta-analysis.
type Reflector interface {
	Reflect(ctx context.Context, input reflection.Input) reflection.Result
}

// GapFiller grows the corpus from the batch's knowledge gaps. A nil
// filler disables gap filling and re-runs.
type GapFiller interface {
	Fill(ctx context.Context, queries []string) (*gapfill.Stats, error)
}

// CaseResult is one test subject's trip through the loop.
type CaseResult struct {
	Profile            formula.Profile
	Baseline           formula.Recommendation
	BaselineScore      int
	Final              formula.Recommendation
	FinalScore         int
	Iterations         int
	Converged          bool
	AppliedAdjustments []string
	Reflection         reflection.Result
	Persisted          bool
}

// BatchResult is one full pass over all test subjects, plus the
// optional evidence-driven re-run.
type BatchResult struct {
	RunID         string
	Cases         []CaseResult
	CasesImproved int
	AverageDelta  float64
	GapQueries    []string
	FillStats     *gapfill.Stats
	Rerun         *BatchResult
}

// Config bounds the per-case sub-loop.
type Config struct {
	MaxIterations      int
	RerunMaxIterations int
}

// Runner owns the loop. The engine's weight table is the single
// mutable state; everything else is stateless between calls.
type Runner struct {
	engine    *formula.Engine
	store     WeightStore
	evaluator Evaluator
	adjuster  Adjuster
	reflector Reflector
	filler    GapFiller
	cfg       Config
	history   []CaseResult
	logger    *slog.Logger
}

// New creates a Runner. Iteration bounds below 1 default to 3 and 2.
func New(engine *formula.Engine, store WeightStore, evaluator Evaluator, adjuster Adjuster, reflector Reflector, filler GapFiller, cfg Config, logger *slog.Logger) *Runner {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 3
	}
	if cfg.RerunMaxIterations < 1 {
		cfg.RerunMaxIterations = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine:    engine,
		store:     store,
		evaluator: evaluator,
		adjuster:  adjuster,
		reflector: reflector,
		filler:    filler,
		cfg:       cfg,
		logger:    logger,
	}
}

// History returns all recorded case results, across every batch and
// re-run this Runner has executed.
func (r *Runner) History() []CaseResult {
	return r.history
}

// Run loads the persisted weights and processes the batch. The
// returned BatchResult links the re-run pass, when one happened, via
// Rerun.
func (r *Runner) Run(ctx context.Context, profiles []formula.Profile) (*BatchResult, error) {
	table, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weight table: %w", err)
	}
	r.engine.SetWeights(table)
	return r.runBatch(ctx, profiles, r.cfg.MaxIterations, 0)
}

func (r *Runner) runBatch(ctx context.Context, profiles []formula.Profile, maxIterations, depth int) (*BatchResult, error) {
	batch := &BatchResult{RunID: uuid.NewString()}
	r.logger.Info("starting improvement batch",
		"run_id", batch.RunID, "cases", len(profiles), "max_iterations", maxIterations, "depth", depth)

	var totalDelta int
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		result := r.runCase(ctx, profile, maxIterations)
		batch.Cases = append(batch.Cases, result)
		r.history = append(r.history, result)

		delta := result.FinalScore - result.BaselineScore
		totalDelta += delta
		if delta > 0 {
			batch.CasesImproved++
		}
		r.logger.Info("case complete",
			"subject", profile.Name,
			"baseline", result.BaselineScore,
			"final", result.FinalScore,
			"iterations", result.Iterations,
			"converged", result.Converged,
			"confidence", result.Reflection.ConfidenceScore,
			"persisted", result.Persisted)
	}
	if len(batch.Cases) > 0 {
		batch.AverageDelta = float64(totalDelta) / float64(len(batch.Cases))
	}

	batch.GapQueries = dedupeGaps(batch.Cases)
	if depth >= maxRerunDepth || r.filler == nil || len(batch.GapQueries) == 0 {
		return batch, nil
	}

	stats, err := r.filler.Fill(ctx, batch.GapQueries)
	if err != nil {
		r.logger.Warn("gap filling failed", "run_id", batch.RunID, "error", err)
		return batch, nil
	}
	batch.FillStats = stats

	if stats.QueriesCovered == 0 || stats.ChunksAdded == 0 {
		r.logger.Info("no gaps covered, skipping re-run", "run_id", batch.RunID)
		return batch, nil
	}

	r.logger.Info("new evidence ingested, re-running batch",
		"run_id", batch.RunID, "queries_covered", stats.QueriesCovered, "chunks_added", stats.ChunksAdded)
	rerun, err := r.runBatch(ctx, profiles, r.cfg.RerunMaxIterations, depth+1)
	batch.Rerun = rerun
	return batch, err
}

// runCase runs the accept-or-revert sub-loop for one subject.
func (r *Runner) runCase(ctx context.Context, profile formula.Profile, maxIterations int) CaseResult {
	baselineRec := r.engine.Calculate(profile)
	baselineEval := r.evaluator.Evaluate(ctx, profile, baselineRec)

	result := CaseResult{
		Profile:       profile,
		Baseline:      baselineRec,
		BaselineScore: baselineEval.OverallScore,
	}

	currentRec := baselineRec
	currentEval := baselineEval
	bestScore := baselineEval.OverallScore

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if len(currentEval.Improvements) == 0 {
			result.Converged = true
			break
		}

		snapshot := r.engine.Weights().Clone()
		table := r.engine.Weights()

		var applied []string
		for _, imp := range currentEval.Improvements {
			if desc, ok := r.adjuster.Apply(table, imp, profile); ok {
				applied = append(applied, desc)
			}
		}
		if len(applied) == 0 {
			result.Converged = true
			break
		}
		result.Iterations = iteration

		newRec := r.engine.Calculate(profile)
		newEval := r.evaluator.Evaluate(ctx, profile, newRec)

		if newEval.OverallScore > bestScore {
			bestScore = newEval.OverallScore
			currentRec = newRec
			currentEval = newEval
			result.AppliedAdjustments = append(result.AppliedAdjustments, applied...)
			r.logger.Debug("adjustment accepted",
				"subject", profile.Name, "iteration", iteration, "score", bestScore)
		} else {
			// Weights go back; the working recommendation and
			// evaluation stay at the last accepted state.
			r.engine.SetWeights(snapshot)
			r.logger.Debug("adjustment reverted",
				"subject", profile.Name, "iteration", iteration,
				"attempted_score", newEval.OverallScore, "best_score", bestScore)
		}
	}

	result.Final = currentRec
	result.FinalScore = bestScore

	if bestScore > result.BaselineScore {
		if err := r.store.Save(ctx, r.engine.Weights()); err != nil {
			r.logger.Warn("weight table save failed", "subject", profile.Name, "error", err)
		} else {
			result.Persisted = true
		}
	}

	result.Reflection = r.reflector.Reflect(ctx, reflection.Input{
		Profile:            profile,
		Baseline:           baselineRec,
		BaselineScore:      result.BaselineScore,
		FinalEvaluation:    currentEval,
		AppliedAdjustments: result.AppliedAdjustments,
		Final:              currentRec,
		FinalScore:         bestScore,
	})
	return result
}

// dedupeGaps merges knowledge gaps across cases, case-insensitively,
// keeping the first-seen spelling and order.
func dedupeGaps(cases []CaseResult) []string {
	seen := make(map[string]struct{})
	var gaps []string
	for _, c := range cases {
		for _, gap := range c.Reflection.KnowledgeGaps {
			key := strings.ToLower(strings.TrimSpace(gap))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

// Summary renders the batch report for the CLI.
func (b *BatchResult) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %d case(s), %d improved, average delta %+.1f\n",
		b.RunID, len(b.Cases), b.CasesImproved, b.AverageDelta)
	for _, c := range b.Cases {
		fmt.Fprintf(&sb, "  %-12s %3d -> %3d  (%d iteration(s), confidence %d)\n",
			c.Profile.Name, c.BaselineScore, c.FinalScore, c.Iterations, c.Reflection.ConfidenceScore)
	}
	if len(b.GapQueries) > 0 {
		fmt.Fprintf(&sb, "Knowledge gaps: %d\n", len(b.GapQueries))
	}
	if b.FillStats != nil {
		fmt.Fprintf(&sb, "Gap filling: %d paper(s) ingested, %d chunk(s) added, %d duplicate(s) skipped\n",
			b.FillStats.PapersDownloaded, b.FillStats.ChunksAdded, b.FillStats.DuplicatesSkipped)
	}
	if b.Rerun != nil {
		sb.WriteString("Re-run with new evidence:\n")
		sb.WriteString(b.Rerun.Summary())
	}
	return sb.String()
}
