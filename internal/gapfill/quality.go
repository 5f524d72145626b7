package gapfill

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bestmove/formulary/internal/pmc"
)

// coveredThreshold is the minimum quality score (of 10) for a gap to
// count as covered by the downloaded papers.
const coveredThreshold = 7

// abstractPromptLimit truncates long abstracts in the triage prompt.
const abstractPromptLimit = 600

// Report is the triage verdict for one gap query.
type Report struct {
	Score     int // 0-10
	Covered   bool
	Issues    []string
	Relevance string
}

// Checker asks the oracle to judge coverage of a gap by the papers
// retrieved for it.
type Checker struct {
	oracle Completer
	logger *slog.Logger
}

// Completer is the triage oracle dependency.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewChecker creates a Checker.
func NewChecker(oracle Completer, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{oracle: oracle, logger: logger}
}

// Check grades how well the papers cover the query. Zero papers is an
// immediate uncovered verdict without an oracle call.
func (c *Checker) Check(ctx context.Context, query string, papers []*pmc.Paper) (Report, error) {
	if len(papers) == 0 {
		return Report{Issues: []string{"no new papers retrieved"}}, nil
	}

	response, err := c.oracle.Complete(ctx, triagePrompt(query, papers))
	if err != nil {
		return Report{}, fmt.Errorf("quality triage: %w", err)
	}

	report := parseQualityResponse(response)
	c.logger.Debug("quality triage complete", "query", query, "score", report.Score, "covered", report.Covered)
	return report, nil
}

func triagePrompt(query string, papers []*pmc.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A literature search was run to close this knowledge gap:\n%s\n\nRetrieved papers:\n", query)
	for i, paper := range papers {
		abstract := paper.Abstract
		if len(abstract) > abstractPromptLimit {
			abstract = abstract[:abstractPromptLimit] + "..."
		}
		fmt.Fprintf(&b, "%d. %s (%s, %d)\n   %s\n", i+1, paper.Title, paper.Journal, paper.Year, abstract)
	}
	b.WriteString("\nJudge whether these papers answer the gap query.\n")
	b.WriteString("Respond in EXACTLY this format:\n")
	b.WriteString("QUALITY_SCORE: <0-10>\n")
	b.WriteString("ISSUES: <semicolon-separated list of concerns, or 'none'>\n")
	b.WriteString("RELEVANCE_ASSESSMENT: <one sentence>\n")
	return b.String()
}

// parseQualityResponse reads the strict triage format. Missing or
// unreadable scores stay at zero, which keeps the gap open.
func parseQualityResponse(text string) Report {
	var report Report
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "*#- \t"))
		switch {
		case hasQualityLabel(line, "QUALITY_SCORE"):
			raw := qualityValue(line, "QUALITY_SCORE")
			if fields := strings.Fields(raw); len(fields) > 0 {
				value := strings.TrimSuffix(fields[0], "/10")
				if score, err := strconv.Atoi(value); err == nil {
					report.Score = clampQuality(score)
				}
			}
		case hasQualityLabel(line, "ISSUES"):
			report.Issues = parseIssues(qualityValue(line, "ISSUES"))
		case hasQualityLabel(line, "RELEVANCE_ASSESSMENT"):
			report.Relevance = qualityValue(line, "RELEVANCE_ASSESSMENT")
		}
	}
	report.Covered = report.Score >= coveredThreshold
	return report
}

func hasQualityLabel(line, label string) bool {
	return strings.HasPrefix(strings.ToUpper(line), label+":")
}

func qualityValue(line, label string) string {
	return strings.TrimSpace(strings.TrimLeft(line[len(label)+1:], "* "))
}

// parseIssues splits a semicolon list; "none" and empties collapse to
// no issues.
func parseIssues(raw string) []string {
	if strings.EqualFold(strings.TrimSuffix(strings.TrimSpace(raw), "."), "none") {
		return nil
	}
	var issues []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			issues = append(issues, part)
		}
	}
	return issues
}

func clampQuality(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
