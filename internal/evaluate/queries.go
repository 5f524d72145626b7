package evaluate

import (
	"fmt"
	"strings"

	"github.com/bestmove/formulary/internal/formula"
)

// Query bank keys. Eight queries per evaluation: one per mineral, two
// ratio queries, one demographic, one sleep-issue query.
const (
	queryMagnesiumDose = "magnesium_dose"
	queryCalciumDose   = "calcium_dose"
	queryPotassiumDose = "potassium_dose"
	querySodiumDose    = "sodium_dose"
	queryMgCaRatio     = "mg_ca_ratio"
	queryKNaBalance    = "k_na_balance"
	queryDemographic   = "demographic"
	querySleepType     = "sleep_type"
)

// mineralQueryKeys maps each mineral to its dose query key.
var mineralQueryKeys = map[string]string{
	formula.Magnesium: queryMagnesiumDose,
	formula.Calcium:   queryCalciumDose,
	formula.Potassium: queryPotassiumDose,
	formula.Sodium:    querySodiumDose,
}

// issueResearchPhrases maps sleep issue tags to canonical research
// phrasing for the sleep_type query.
var issueResearchPhrases = map[string]string{
	formula.IssueTroubleFallingAsleep: "sleep onset latency reduction",
	formula.IssueFrequentWaking:       "sleep maintenance and reducing wake episodes",
	formula.IssueEarlyWaking:          "preventing early awakening",
	formula.IssueRestlessSleep:        "improving sleep quality and reducing movement",
}

// genericSleepPhrase is the sleep_type fallback when the profile has no
// mapped issue tags.
const genericSleepPhrase = "general sleep quality improvement"

// buildQueries constructs the fixed bank of eight evidence queries for
// one profile/recommendation pair.
func buildQueries(profile formula.Profile, rec formula.Recommendation) map[string]string {
	queries := make(map[string]string, 8)

	for _, mineral := range formula.Minerals {
		queries[mineralQueryKeys[mineral]] = fmt.Sprintf(
			"%s %.0fmg supplementation sleep quality %d year old %s",
			mineral, rec.Dose(mineral), profile.Age, profile.Sex)
	}

	queries[queryMgCaRatio] = fmt.Sprintf(
		"magnesium calcium ratio %.1f to 1 supplementation absorption sleep",
		safeTargetRatio(rec.Dose(formula.Magnesium), rec.Dose(formula.Calcium)))
	queries[queryKNaBalance] = fmt.Sprintf(
		"potassium sodium balance %.0fmg %.0fmg electrolyte sleep quality",
		rec.Dose(formula.Potassium), rec.Dose(formula.Sodium))

	queries[queryDemographic] = fmt.Sprintf(
		"mineral supplementation %d year old %s %s",
		profile.Age, profile.Sex, strings.Join(profile.SleepIssues, " "))

	queries[querySleepType] = sleepTypePhrase(profile) + " minerals electrolytes"

	return queries
}

// sleepTypePhrase returns the research phrase for the profile's first
// mapped sleep issue, or the generic fallback.
func sleepTypePhrase(profile formula.Profile) string {
	for _, issue := range profile.SleepIssues {
		if phrase, ok := issueResearchPhrases[issue]; ok {
			return phrase
		}
	}
	return genericSleepPhrase
}

// safeTargetRatio avoids division by zero in query templating.
func safeTargetRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
