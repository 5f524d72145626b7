// Package reflection produces a post-case meta-analysis of one
// improvement run: a confidence estimate, reasoning, and concrete
// follow-up evidence queries (knowledge gaps).
//
// The oracle's response is parsed tolerantly. Explicit markers are
// preferred; heuristic fallbacks degrade to lower-quality structured
// output instead of failing, so a malformed response never aborts a
// batch.
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bestmove/formulary/internal/evaluate"
	"github.com/bestmove/formulary/internal/formula"
)

// maxKnowledgeGaps caps the follow-up queries extracted per case.
const maxKnowledgeGaps = 5

// minGapLength filters out fragments too short to be useful search
// queries.
const minGapLength = 10

// Result is the reflection output for one test case.
type Result struct {
	KeyReasoning      string   `json:"key_reasoning"`
	ConfidenceScore   int      `json:"confidence_score"` // 0-100
	KnowledgeGaps     []string `json:"knowledge_gaps"`
	AdjustmentSummary string   `json:"adjustment_summary"`
}

// Input is the full before/after context of one improvement run.
type Input struct {
	Profile            formula.Profile
	Baseline           formula.Recommendation
	BaselineScore      int
	FinalEvaluation    evaluate.Result
	AppliedAdjustments []string
	Final              formula.Recommendation
	FinalScore         int
}

// Completer is the reflection oracle dependency.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Reflector runs the meta-analysis.
type Reflector struct {
	oracle Completer
	logger *slog.Logger
}

// New creates a Reflector.
// A nil logger falls back to slog.Default().
func New(oracle Completer, logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{oracle: oracle, logger: logger}
}

// Reflect builds the case dossier, asks the oracle once, and parses
// the response. Oracle failure yields a degraded Result (zero
// confidence, error text, no gaps) rather than an error.
func (r *Reflector) Reflect(ctx context.Context, input Input) Result {
	response, err := r.oracle.Complete(ctx, r.buildDossier(input))
	if err != nil {
		r.logger.Warn("reflection oracle failed, recording degraded result",
			"subject", input.Profile.Name, "error", err)
		return Result{
			KeyReasoning:    "reflection failed: " + err.Error(),
			ConfidenceScore: 0,
		}
	}
	return parseReflection(response)
}

// buildDossier assembles the single textual prompt describing the full
// run.
func (r *Reflector) buildDossier(input Input) string {
	var b strings.Builder

	b.WriteString("You are reviewing one run of a self-tuning mineral supplement recommendation system for sleep support.\n\n")

	fmt.Fprintf(&b, "Subject: %d year old %s, %.0f lbs", input.Profile.Age, input.Profile.Sex, input.Profile.WeightLbs)
	if len(input.Profile.SleepIssues) > 0 {
		fmt.Fprintf(&b, ", sleep issues: %s", strings.Join(input.Profile.SleepIssues, ", "))
	}
	if len(input.Profile.Medications) > 0 {
		fmt.Fprintf(&b, ", medications: %s", strings.Join(input.Profile.Medications, ", "))
	}
	b.WriteString("\n\nBaseline recommendation:\n")
	writeDoses(&b, input.Baseline)
	fmt.Fprintf(&b, "Baseline score: %d/100\n\n", input.BaselineScore)

	b.WriteString("Evidence retrieved per query:\n")
	for key, count := range input.FinalEvaluation.EvidenceCounts {
		fmt.Fprintf(&b, "  %s: %d excerpts\n", key, count)
	}

	b.WriteString("\nFinal per-mineral grades:\n")
	for _, mineral := range formula.Minerals {
		grade := input.FinalEvaluation.Grades[mineral]
		fmt.Fprintf(&b, "  %s: %d (%s)\n", mineral, grade.Score, grade.Feedback)
	}

	if len(input.AppliedAdjustments) > 0 {
		b.WriteString("\nApplied weight adjustments:\n")
		for _, adj := range input.AppliedAdjustments {
			fmt.Fprintf(&b, "  - %s\n", adj)
		}
	} else {
		b.WriteString("\nNo weight adjustments were accepted.\n")
	}

	b.WriteString("\nFinal recommendation:\n")
	writeDoses(&b, input.Final)
	fmt.Fprintf(&b, "Final score: %d/100\n\n", input.FinalScore)

	b.WriteString("Respond in this format:\n")
	b.WriteString("CONFIDENCE SCORE: <0-100, how well the final recommendation is supported by the retrieved evidence>\n")
	b.WriteString("KEY REASONING: <2-3 sentences on what drove the score and its changes>\n")
	fmt.Fprintf(&b, "Then up to %d knowledge gaps, each a concrete literature search query:\n", maxKnowledgeGaps)
	b.WriteString("GAP 1: <search query>\n")
	b.WriteString("GAP 2: <search query>\n")
	b.WriteString("ADJUSTMENT SUMMARY: <one sentence on the net effect of the applied adjustments>\n")

	return b.String()
}

func writeDoses(b *strings.Builder, rec formula.Recommendation) {
	for _, mineral := range formula.Minerals {
		if dose, ok := rec.Doses[mineral]; ok {
			fmt.Fprintf(b, "  %s: %.0fmg (%s)\n", mineral, dose, rec.Forms[mineral])
		}
	}
}
