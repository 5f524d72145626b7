package gapfill

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bestmove/formulary/internal/pmc"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func triagePapers() []*pmc.Paper {
	return []*pmc.Paper{
		{PMCID: "PMC1", Title: "Magnesium and sleep onset", Journal: "Sleep", Year: 2021, Abstract: "A randomized trial."},
		{PMCID: "PMC2", Title: "Mineral intake in older adults", Journal: "Nutrients", Year: 2019, Abstract: "A cohort study."},
	}
}

func TestChecker_Covered(t *testing.T) {
	oracle := &fakeCompleter{response: "QUALITY_SCORE: 8\nISSUES: none\nRELEVANCE_ASSESSMENT: Directly addresses the dosing question."}
	checker := NewChecker(oracle, nil)

	report, err := checker.Check(context.Background(), "magnesium dosing sleep onset", triagePapers())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !report.Covered || report.Score != 8 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Issues) != 0 {
		t.Errorf("Issues = %v, want none", report.Issues)
	}
	if report.Relevance != "Directly addresses the dosing question." {
		t.Errorf("Relevance = %q", report.Relevance)
	}
	if len(oracle.prompts) != 1 {
		t.Fatalf("oracle calls = %d, want 1", len(oracle.prompts))
	}
	for _, want := range []string{"magnesium dosing sleep onset", "Magnesium and sleep onset", "QUALITY_SCORE"} {
		if !strings.Contains(oracle.prompts[0], want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestChecker_ZeroPapersSkipsOracle(t *testing.T) {
	oracle := &fakeCompleter{response: "QUALITY_SCORE: 10"}
	checker := NewChecker(oracle, nil)

	report, err := checker.Check(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if report.Covered || report.Score != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(oracle.prompts) != 0 {
		t.Errorf("oracle called %d times, want 0", len(oracle.prompts))
	}
}

func TestChecker_OracleError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	checker := NewChecker(&fakeCompleter{err: wantErr}, nil)

	if _, err := checker.Check(context.Background(), "anything", triagePapers()); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestParseQualityResponse(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantScore   int
		wantCovered bool
		wantIssues  []string
	}{
		{
			name:        "boundary score counts as covered",
			text:        "QUALITY_SCORE: 7\nISSUES: none\nRELEVANCE_ASSESSMENT: fine",
			wantScore:   7,
			wantCovered: true,
		},
		{
			name:        "below threshold with issues",
			text:        "QUALITY_SCORE: 5\nISSUES: small samples; wrong age group\nRELEVANCE_ASSESSMENT: partial",
			wantScore:   5,
			wantCovered: false,
			wantIssues:  []string{"small samples", "wrong age group"},
		},
		{
			name:        "markdown decorated",
			text:        "**QUALITY_SCORE:** 9\n**ISSUES:** None.\n**RELEVANCE_ASSESSMENT:** strong",
			wantScore:   9,
			wantCovered: true,
		},
		{
			name:        "score with denominator",
			text:        "QUALITY_SCORE: 8/10\nISSUES: none",
			wantScore:   8,
			wantCovered: true,
		},
		{
			name:        "missing score stays uncovered",
			text:        "ISSUES: no usable data\nRELEVANCE_ASSESSMENT: off topic",
			wantScore:   0,
			wantCovered: false,
			wantIssues:  []string{"no usable data"},
		},
		{
			name:        "score clamped to ten",
			text:        "QUALITY_SCORE: 15",
			wantScore:   10,
			wantCovered: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := parseQualityResponse(tt.text)
			if report.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", report.Score, tt.wantScore)
			}
			if report.Covered != tt.wantCovered {
				t.Errorf("Covered = %v, want %v", report.Covered, tt.wantCovered)
			}
			if !reflect.DeepEqual(report.Issues, tt.wantIssues) {
				t.Errorf("Issues = %v, want %v", report.Issues, tt.wantIssues)
			}
		})
	}
}

func FuzzParseQualityResponse(f *testing.F) {
	f.Add("QUALITY_SCORE: 8\nISSUES: none")
	f.Add("no structure at all")
	f.Add("QUALITY_SCORE: -4\nISSUES: ;;;")

	f.Fuzz(func(t *testing.T, text string) {
		report := parseQualityResponse(text)
		if report.Score < 0 || report.Score > 10 {
			t.Errorf("Score = %d out of range", report.Score)
		}
		if report.Covered != (report.Score >= coveredThreshold) {
			t.Error("Covered inconsistent with Score")
		}
	})
}
