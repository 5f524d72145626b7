package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bestmove/formulary/internal/formula"
)

// DefaultSubjects returns the built-in test cases: a young woman with
// sleep onset trouble, a middle-aged man with fragmented sleep, and an
// older woman with low mineral intake on blood pressure medication.
func DefaultSubjects() []formula.Profile {
	return []formula.Profile{
		{
			Name:        "Emma",
			Age:         28,
			Sex:         formula.SexFemale,
			WeightLbs:   135,
			SleepIssues: []string{formula.IssueTroubleFallingAsleep},
			Intake: map[string]float64{
				formula.Magnesium: 180,
				formula.Calcium:   750,
				formula.Potassium: 1900,
				formula.Sodium:    2100,
			},
		},
		{
			Name:        "Marcus",
			Age:         45,
			Sex:         formula.SexMale,
			WeightLbs:   185,
			SleepIssues: []string{formula.IssueFrequentWaking, formula.IssueRestlessSleep},
			Intake: map[string]float64{
				formula.Magnesium: 250,
				formula.Calcium:   900,
				formula.Potassium: 2300,
				formula.Sodium:    2400,
			},
		},
		{
			Name:        "Ruth",
			Age:         62,
			Sex:         formula.SexFemale,
			WeightLbs:   145,
			SleepIssues: []string{formula.IssueTroubleFallingAsleep, formula.IssueEarlyWaking},
			Intake: map[string]float64{
				formula.Magnesium: 150,
				formula.Calcium:   650,
				formula.Potassium: 1600,
				formula.Sodium:    1800,
			},
			Medications: []string{formula.MedBloodPressure},
		},
	}
}

// LoadSubjects reads test subjects from a JSON file, falling back to
// the built-in cases when no path is given. Sex, issue, and medication
// tags are normalized to the engine's snake_case form.
func LoadSubjects(path string) ([]formula.Profile, error) {
	if path == "" {
		return DefaultSubjects(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subjects file: %w", err)
	}

	var subjects []formula.Profile
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("parsing subjects file %s: %w", path, err)
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("subjects file %s contains no subjects", path)
	}

	for i := range subjects {
		normalizeSubject(&subjects[i])
		if err := validateSubject(subjects[i]); err != nil {
			return nil, fmt.Errorf("subjects file %s, entry %d: %w", path, i+1, err)
		}
	}
	return subjects, nil
}

func normalizeSubject(p *formula.Profile) {
	p.Sex = normalizeTag(p.Sex)
	for i, issue := range p.SleepIssues {
		p.SleepIssues[i] = normalizeTag(issue)
	}
	for i, med := range p.Medications {
		p.Medications[i] = normalizeTag(med)
	}
}

// normalizeTag lowercases and snake_cases a human-entered tag:
// "Trouble falling asleep" becomes "trouble_falling_asleep".
func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.ReplaceAll(tag, " ", "_")
}

func validateSubject(p formula.Profile) error {
	if p.Age < 18 {
		return fmt.Errorf("age %d below supported minimum of 18", p.Age)
	}
	if p.Sex != formula.SexMale && p.Sex != formula.SexFemale {
		return fmt.Errorf("sex %q must be %q or %q", p.Sex, formula.SexMale, formula.SexFemale)
	}
	if p.WeightLbs <= 0 {
		return fmt.Errorf("weight %.0f lbs must be positive", p.WeightLbs)
	}
	return nil
}
