package evaluate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/formula"
)

// Grade is one mineral's evidence-based assessment.
type Grade struct {
	Score      int    `json:"score"` // 0-100
	Feedback   string `json:"feedback"`
	Suggestion string `json:"suggestion"`
}

// neutralSuggestion is the suggestion used when grading fails; it is
// also the explicit no-change marker improvement extraction respects.
const neutralSuggestion = "No change"

// neutralGrade is substituted when the oracle fails or its response
// cannot be parsed, so a single grading failure never aborts an
// evaluation.
func neutralGrade(reason string) Grade {
	return Grade{Score: 50, Feedback: reason, Suggestion: neutralSuggestion}
}

// gradingPrompt builds the strict-format grading request for one
// mineral.
func gradingPrompt(profile formula.Profile, mineral string, dose float64, excerpts []evidence.Excerpt) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are evaluating a mineral supplement recommendation for sleep support.\n\n")
	fmt.Fprintf(&b, "Subject: %d year old %s, %.0f lbs", profile.Age, profile.Sex, profile.WeightLbs)
	if len(profile.SleepIssues) > 0 {
		fmt.Fprintf(&b, ", sleep issues: %s", strings.Join(profile.SleepIssues, ", "))
	}
	if len(profile.Medications) > 0 {
		fmt.Fprintf(&b, ", medications: %s", strings.Join(profile.Medications, ", "))
	}
	fmt.Fprintf(&b, "\nRecommended: %s %.0fmg/day\n\n", mineral, dose)

	if len(excerpts) > 0 {
		b.WriteString("Research evidence:\n")
		for i, ex := range excerpts {
			title := ex.Title
			if title == "" {
				title = ex.SourceID
			}
			fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, title, ex.Content)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No research evidence was retrieved for this query.\n\n")
	}

	fmt.Fprintf(&b, "Grade the %s recommendation against the evidence. Respond in exactly this format:\n", mineral)
	b.WriteString("SCORE: <0-100>\n")
	b.WriteString("FEEDBACK: <one or two sentences on how well the dose matches the evidence>\n")
	b.WriteString("SUGGESTION: <a specific dose change like \"Increase to 400mg\", or \"No change\">\n")

	return b.String()
}

// parseGrade parses a strict SCORE:/FEEDBACK:/SUGGESTION: response.
// Missing FEEDBACK or SUGGESTION lines default rather than fail; a
// missing or unparseable SCORE line is an error.
func parseGrade(response string) (Grade, error) {
	grade := Grade{Score: -1, Suggestion: neutralSuggestion}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasLabel(line, "SCORE"):
			fields := strings.Fields(labelValue(line, "SCORE"))
			if len(fields) == 0 {
				continue
			}
			score, err := strconv.Atoi(strings.TrimSuffix(fields[0], "/100"))
			if err != nil {
				continue
			}
			if score < 0 {
				score = 0
			}
			if score > 100 {
				score = 100
			}
			grade.Score = score
		case hasLabel(line, "FEEDBACK"):
			grade.Feedback = labelValue(line, "FEEDBACK")
		case hasLabel(line, "SUGGESTION"):
			if v := labelValue(line, "SUGGESTION"); v != "" {
				grade.Suggestion = v
			}
		}
	}

	if grade.Score < 0 {
		return Grade{}, fmt.Errorf("no SCORE line in grading response")
	}
	return grade, nil
}

// hasLabel reports whether line starts with "LABEL:" (case-insensitive,
// optional leading markdown markers).
func hasLabel(line, label string) bool {
	line = strings.TrimLeft(line, "*#- ")
	return len(line) > len(label) &&
		strings.EqualFold(line[:len(label)], label) &&
		strings.HasPrefix(strings.TrimSpace(line[len(label):]), ":")
}

// labelValue extracts the text after "LABEL:".
func labelValue(line, label string) string {
	line = strings.TrimLeft(line, "*#- ")
	rest := strings.TrimSpace(line[len(label):])
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(strings.TrimLeft(rest, "* "))
}

// isNoChange reports whether a suggestion explicitly declines to
// change the dose.
func isNoChange(suggestion string) bool {
	normalized := strings.ToLower(strings.TrimSpace(suggestion))
	normalized = strings.TrimSuffix(normalized, ".")
	return strings.Contains(normalized, "no change") || normalized == "none"
}
