package reflection

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	confidencePattern = regexp.MustCompile(`(?i)CONFIDENCE\s*SCORE[:\s*]*(\d+)`)
	gapPattern        = regexp.MustCompile(`(?i)^GAP\s*\d+\s*[:.]\s*(.+)$`)
	bulletPattern     = regexp.MustCompile(`^[-*]\s+(.+)$`)
)

// parseReflection extracts structured fields from an oracle response.
// Marker lines win; when a marker is absent a heuristic fallback keeps
// the result usable.
func parseReflection(text string) Result {
	result := Result{ConfidenceScore: 50}

	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		if score, err := strconv.Atoi(m[1]); err == nil {
			result.ConfidenceScore = clampScore(score)
		}
	}

	lines := strings.Split(text, "\n")
	result.KeyReasoning = sectionAfter(lines, "KEY REASONING")
	result.AdjustmentSummary = sectionAfter(lines, "ADJUSTMENT SUMMARY")
	result.KnowledgeGaps = extractGaps(lines)

	if result.KeyReasoning == "" {
		result.KeyReasoning = firstProseLines(lines, 3)
	}
	return result
}

// sectionAfter returns the text following "LABEL:" on its line, plus
// continuation lines up to the next marker or blank line.
func sectionAfter(lines []string, label string) string {
	var parts []string
	collecting := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(stripDecoration(line))
		if collecting {
			if trimmed == "" || isMarkerLine(trimmed) {
				break
			}
			parts = append(parts, trimmed)
			continue
		}
		rest, ok := cutLabel(trimmed, label)
		if !ok {
			continue
		}
		collecting = true
		if rest != "" {
			parts = append(parts, rest)
		}
	}
	return strings.Join(parts, " ")
}

// extractGaps prefers GAP n: markers; without any it falls back to
// bullet lines under a gaps heading.
func extractGaps(lines []string) []string {
	var gaps []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(stripDecoration(line))
		if m := gapPattern.FindStringSubmatch(trimmed); m != nil {
			gaps = appendGap(gaps, m[1])
		}
	}
	if len(gaps) > 0 {
		return gaps
	}

	inGapSection := false
	for _, line := range lines {
		raw := strings.TrimSpace(line)
		trimmed := strings.TrimSpace(stripDecoration(line))
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "knowledge gap") || strings.Contains(lower, "research gap") {
			inGapSection = true
			continue
		}
		if !inGapSection {
			continue
		}
		if isMarkerLine(trimmed) {
			break
		}
		if m := bulletPattern.FindStringSubmatch(raw); m != nil {
			gaps = appendGap(gaps, m[1])
		}
	}
	return gaps
}

func appendGap(gaps []string, candidate string) []string {
	candidate = strings.TrimSpace(strings.TrimLeft(candidate, "* "))
	if len(candidate) <= minGapLength || len(gaps) >= maxKnowledgeGaps {
		return gaps
	}
	return append(gaps, candidate)
}

// firstProseLines joins the first n non-marker, non-bullet lines as a
// last-resort reasoning summary.
func firstProseLines(lines []string, n int) string {
	var parts []string
	for _, line := range lines {
		raw := strings.TrimSpace(line)
		trimmed := strings.TrimSpace(stripDecoration(line))
		if trimmed == "" || isMarkerLine(trimmed) || bulletPattern.MatchString(raw) {
			continue
		}
		parts = append(parts, trimmed)
		if len(parts) == n {
			break
		}
	}
	return strings.Join(parts, " ")
}

// isMarkerLine reports whether the line starts one of the structured
// sections.
func isMarkerLine(line string) bool {
	upper := strings.ToUpper(line)
	for _, marker := range []string{"CONFIDENCE SCORE", "KEY REASONING", "ADJUSTMENT SUMMARY", "GAP "} {
		if strings.HasPrefix(upper, marker) {
			return true
		}
	}
	return false
}

// cutLabel splits "LABEL: rest" case-insensitively and returns rest.
func cutLabel(line, label string) (string, bool) {
	upper := strings.ToUpper(line)
	if !strings.HasPrefix(upper, label) {
		return "", false
	}
	rest := line[len(label):]
	rest = strings.TrimLeft(rest, ":* \t")
	return strings.TrimSpace(rest), true
}

// stripDecoration removes leading markdown emphasis and heading
// characters so decorated markers still match.
func stripDecoration(line string) string {
	return strings.TrimLeft(line, "#* \t")
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

