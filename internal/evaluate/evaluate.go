// Package evaluate grades dose recommendations against retrieved
// research evidence.
//
// One evaluation issues a fixed bank of eight evidence queries
// concurrently, grades each mineral's dose with a language-model
// oracle over the retrieved excerpts, and aggregates the four grades
// into a single weighted overall score. Failures are isolated at the
// query and grade level: a failed query contributes an empty result
// set, a failed grade becomes a neutral default, and the evaluation
// always produces a valid result.
package evaluate

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/formula"
)

// Improvement priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// improvementThreshold is the grade below which a mineral produces an
// Improvement record; highPriorityThreshold splits priority.
const (
	improvementThreshold  = 80
	highPriorityThreshold = 60
)

// aggregationWeights weight each mineral's grade in the overall score.
// Magnesium dominates because it is the chief lever for sleep support.
var aggregationWeights = map[string]float64{
	formula.Magnesium: 0.50,
	formula.Calcium:   0.25,
	formula.Potassium: 0.15,
	formula.Sodium:    0.10,
}

// workerPoolWidth bounds concurrent evidence queries. One worker per
// query in the common case.
const workerPoolWidth = 8

// defaultQueryTimeout hardens against a hung retrieval blocking the
// whole evaluation.
const defaultQueryTimeout = 15 * time.Second

// Improvement flags one mineral whose dose the evidence disputes.
type Improvement struct {
	Mineral     string  `json:"mineral"`
	CurrentDose float64 `json:"current_dose"`
	Feedback    string  `json:"feedback"`
	Suggestion  string  `json:"suggestion"`
	Priority    string  `json:"priority"`
}

// Result is one full evaluation. Immutable once produced; the
// improvement loop only compares OverallScore across iterations.
type Result struct {
	OverallScore   int              `json:"overall_score"`
	Grades         map[string]Grade `json:"grades"`
	Improvements   []Improvement    `json:"improvements"`
	EvidenceCounts map[string]int   `json:"evidence_counts"` // query key → excerpts retrieved
}

// Searcher is the evidence retrieval dependency.
// *evidence.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...evidence.SearchOption) ([]evidence.Excerpt, error)
}

// Completer is the grading oracle dependency.
// *oracle.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Evaluator grades recommendations against the evidence corpus.
type Evaluator struct {
	searcher     Searcher
	oracle       Completer
	topK         int
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Config tunes an Evaluator. Zero values fall back to defaults
// (top-k 3, 15s query timeout).
type Config struct {
	TopK         int
	QueryTimeout time.Duration
}

// New creates an Evaluator.
// A nil logger falls back to slog.Default().
func New(searcher Searcher, oracle Completer, cfg Config, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return &Evaluator{
		searcher:     searcher,
		oracle:       oracle,
		topK:         cfg.TopK,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}
}

// Evaluate runs the full query/grade/aggregate pipeline for one
// profile and recommendation. It always returns a valid Result;
// retrieval and grading failures degrade individual grades instead of
// propagating.
func (e *Evaluator) Evaluate(ctx context.Context, profile formula.Profile, rec formula.Recommendation) Result {
	queries := buildQueries(profile, rec)
	results := e.gather(ctx, queries)

	counts := make(map[string]int, len(results))
	for key, excerpts := range results {
		counts[key] = len(excerpts)
	}

	grades := make(map[string]Grade, len(formula.Minerals))
	for _, mineral := range formula.Minerals {
		grades[mineral] = e.grade(ctx, profile, mineral, rec.Dose(mineral), results)
	}

	return Result{
		OverallScore:   aggregate(grades),
		Grades:         grades,
		Improvements:   extractImprovements(grades, rec),
		EvidenceCounts: counts,
	}
}

// gather scatter/gathers the query bank over a bounded worker pool.
// Each query runs under its own timeout; a failed or timed-out query
// yields an empty excerpt list for its key and never cancels siblings.
func (e *Evaluator) gather(ctx context.Context, queries map[string]string) map[string][]evidence.Excerpt {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string][]evidence.Excerpt, len(queries))
		sem     = make(chan struct{}, workerPoolWidth)
	)

	for key, query := range queries {
		wg.Add(1)
		go func(key, query string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
			defer cancel()

			excerpts, err := e.searcher.Search(queryCtx, query, evidence.WithTopK(e.topK))
			if err != nil {
				e.logger.Warn("evidence query failed, substituting empty result",
					"query_key", key, "error", err)
				excerpts = nil
			}

			mu.Lock()
			results[key] = excerpts
			mu.Unlock()
		}(key, query)
	}

	wg.Wait()
	return results
}

// grade assembles one mineral's evidence context and asks the oracle
// for a strict-format grade. Oracle or parse failure yields the
// neutral default.
func (e *Evaluator) grade(ctx context.Context, profile formula.Profile, mineral string, dose float64, results map[string][]evidence.Excerpt) Grade {
	excerpts := append([]evidence.Excerpt(nil), results[mineralQueryKeys[mineral]]...)

	// The first two demographic hits give population context.
	demographic := results[queryDemographic]
	if len(demographic) > 2 {
		demographic = demographic[:2]
	}
	excerpts = append(excerpts, demographic...)

	response, err := e.oracle.Complete(ctx, gradingPrompt(profile, mineral, dose, excerpts))
	if err != nil {
		e.logger.Warn("grading oracle failed, substituting neutral grade",
			"mineral", mineral, "error", err)
		return neutralGrade("grading failed: " + err.Error())
	}

	grade, err := parseGrade(response)
	if err != nil {
		e.logger.Warn("unparseable grading response, substituting neutral grade",
			"mineral", mineral, "error", err)
		return neutralGrade("unparseable grading response: " + err.Error())
	}
	return grade
}

// aggregate computes the weighted overall score.
func aggregate(grades map[string]Grade) int {
	var sum float64
	for mineral, weight := range aggregationWeights {
		sum += weight * float64(grades[mineral].Score)
	}
	return int(math.Round(sum))
}

// extractImprovements converts low grades into prioritized Improvement
// records, high priority first (stable within each priority by mineral
// order).
func extractImprovements(grades map[string]Grade, rec formula.Recommendation) []Improvement {
	var high, medium []Improvement

	for _, mineral := range formula.Minerals {
		grade := grades[mineral]
		if grade.Score >= improvementThreshold || isNoChange(grade.Suggestion) {
			continue
		}

		imp := Improvement{
			Mineral:     mineral,
			CurrentDose: rec.Dose(mineral),
			Feedback:    grade.Feedback,
			Suggestion:  grade.Suggestion,
			Priority:    PriorityMedium,
		}
		if grade.Score < highPriorityThreshold {
			imp.Priority = PriorityHigh
			high = append(high, imp)
		} else {
			medium = append(medium, imp)
		}
	}

	return append(high, medium...)
}
