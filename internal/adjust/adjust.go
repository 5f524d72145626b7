// Package adjust converts free-text dose suggestions into single-field
// weight table mutations.
//
// Each Apply call mutates at most one field, chosen by keyword
// priority, and damps the change so one noisy evidence judgment cannot
// overcorrect: the next evaluation re-assesses and either compounds or
// reverses it.
package adjust

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bestmove/formulary/internal/evaluate"
	"github.com/bestmove/formulary/internal/formula"
)

// Damping fractions per adjusted field kind.
const (
	ageDamping   = 0.5
	sexDamping   = 0.5
	issueDamping = 0.7 // additive, applied to the raw mg delta
	baseDamping  = 0.3
)

// targetDosePattern matches the first explicit "<n>mg" in a suggestion.
var targetDosePattern = regexp.MustCompile(`(\d+)\s*mg`)

// Word-boundary keyword patterns. Plain substring matching is wrong
// here: "dosage" contains "age", "supplement" contains "men".
var (
	ageWordPattern    = regexp.MustCompile(`\bage\b|\baging\b|\belderly\b`)
	maleWordPattern   = regexp.MustCompile(`\b(male|males|men)\b`)
	femaleWordPattern = regexp.MustCompile(`\b(female|females|woman|women)\b`)
)

// issueKeywords maps sleep issue tags to the suggestion keywords that
// select them.
var issueKeywords = map[string][]string{
	formula.IssueTroubleFallingAsleep: {"onset", "falling asleep", "fall asleep"},
	formula.IssueFrequentWaking:       {"waking", "wake episodes", "maintenance"},
	formula.IssueEarlyWaking:          {"early", "awakening"},
	formula.IssueRestlessSleep:        {"restless", "movement"},
}

// Adjuster mutates weight tables from improvement suggestions.
type Adjuster struct {
	logger *slog.Logger
}

// New creates an Adjuster.
// A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{logger: logger}
}

// Apply parses the improvement's suggestion for a target dose and
// mutates exactly one weight field for the improvement's mineral.
// Returns a human-readable description of the mutation, or ok=false
// when the suggestion carries no parseable target (no mutation made).
func (a *Adjuster) Apply(table *formula.WeightTable, imp evaluate.Improvement, profile formula.Profile) (string, bool) {
	target, ok := parseTargetDose(imp.Suggestion)
	if !ok {
		a.logger.Debug("no parseable target dose in suggestion",
			"mineral", imp.Mineral, "suggestion", imp.Suggestion)
		return "", false
	}
	if imp.CurrentDose == 0 {
		a.logger.Debug("zero current dose, skipping adjustment", "mineral", imp.Mineral)
		return "", false
	}

	mw, ok := table.Minerals[imp.Mineral]
	if !ok {
		return "", false
	}

	changePct := (target - imp.CurrentDose) / imp.CurrentDose
	suggestion := strings.ToLower(imp.Suggestion)

	// Field selection by keyword priority; exactly one mutation.
	switch {
	case ageWordPattern.MatchString(suggestion) || profile.Age > 50:
		bucket := formula.AgeBucketFor(profile.Age)
		old := mw.AgeMultipliers[bucket]
		mw.AgeMultipliers[bucket] = roundMultiplier(old * (1 + ageDamping*changePct))
		return a.describe(imp.Mineral, fmt.Sprintf("age %s multiplier", bucket),
			old, mw.AgeMultipliers[bucket], target), true

	case mentionsSex(suggestion, profile.Sex):
		old := mw.SexMultipliers[profile.Sex]
		mw.SexMultipliers[profile.Sex] = roundMultiplier(old * (1 + sexDamping*changePct))
		return a.describe(imp.Mineral, profile.Sex+" multiplier",
			old, mw.SexMultipliers[profile.Sex], target), true

	case imp.Mineral == formula.Magnesium && matchIssue(suggestion, profile) != "":
		issue := matchIssue(suggestion, profile)
		old := mw.IssueAdjustments[issue]
		mw.IssueAdjustments[issue] = roundDose(old + issueDamping*(target-imp.CurrentDose))
		return a.describe(imp.Mineral, issue+" adjustment",
			old, mw.IssueAdjustments[issue], target), true

	default:
		old := mw.BaseDose
		mw.BaseDose = roundDose(old * (1 + baseDamping*changePct))
		return a.describe(imp.Mineral, "base dose", old, mw.BaseDose, target), true
	}
}

func (a *Adjuster) describe(mineral, field string, old, updated, target float64) string {
	desc := fmt.Sprintf("%s %s %.2f -> %.2f (toward %.0fmg)", mineral, field, old, updated, target)
	a.logger.Debug("applied weight adjustment", "mineral", mineral, "field", field,
		"old", old, "new", updated, "target_mg", target)
	return desc
}

// parseTargetDose extracts the first explicit "<n>mg" amount.
// Pure; never panics on arbitrary input.
func parseTargetDose(suggestion string) (float64, bool) {
	match := targetDosePattern.FindStringSubmatch(strings.ToLower(suggestion))
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// mentionsSex reports whether the suggestion refers to the subject's
// sex.
func mentionsSex(suggestion, sex string) bool {
	if strings.Contains(suggestion, "sex") || strings.Contains(suggestion, "gender") {
		return true
	}
	switch sex {
	case formula.SexFemale:
		return femaleWordPattern.MatchString(suggestion)
	case formula.SexMale:
		return maleWordPattern.MatchString(suggestion)
	}
	return false
}

// matchIssue returns the first profile sleep issue whose keywords
// appear in the suggestion, or "".
func matchIssue(suggestion string, profile formula.Profile) string {
	for _, issue := range profile.SleepIssues {
		for _, keyword := range issueKeywords[issue] {
			if strings.Contains(suggestion, keyword) {
				return issue
			}
		}
	}
	return ""
}

// roundMultiplier rounds to 2 decimals and floors at zero.
func roundMultiplier(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Round(v*100) / 100
}

// roundDose rounds to whole mg and floors at zero.
func roundDose(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Round(v)
}
