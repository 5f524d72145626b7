package gapfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/pmc"
)

type fakeSource struct {
	ids       map[string][]string
	searchErr map[string]error
	fetched   map[string][]byte
	fetchErr  map[string]error
}

func (f *fakeSource) Search(_ context.Context, query string, _ int) ([]string, error) {
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.ids[query], nil
}

func (f *fakeSource) Fetch(_ context.Context, id string) ([]byte, error) {
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	body, ok := f.fetched[id]
	if !ok {
		return nil, fmt.Errorf("no fixture for id %s", id)
	}
	return body, nil
}

type fakeStore struct {
	docs   []evidence.Document
	addErr error
}

func (f *fakeStore) Add(_ context.Context, docs []evidence.Document) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.docs = append(f.docs, docs...)
	return nil
}

type fakeTracker struct {
	ingested map[string]bool
	marked   []string
}

func (f *fakeTracker) IsIngested(_ context.Context, pmcid string) (bool, error) {
	return f.ingested[pmcid], nil
}

func (f *fakeTracker) MarkIngested(_ context.Context, pmcid, _, _ string) error {
	f.marked = append(f.marked, pmcid)
	return nil
}

type fakeChecker struct {
	reports    map[string]Report
	err        error
	paperCount map[string]int
}

func (f *fakeChecker) Check(_ context.Context, query string, papers []*pmc.Paper) (Report, error) {
	if f.paperCount == nil {
		f.paperCount = make(map[string]int)
	}
	f.paperCount[query] = len(papers)
	if f.err != nil {
		return Report{}, f.err
	}
	return f.reports[query], nil
}

// articleXML builds a minimal JATS payload that parses into one
// abstract chunk.
func articleXML(pmcid, title string) []byte {
	return []byte(fmt.Sprintf(`<pmc-articleset><article><front><article-meta>
<article-id pub-id-type="pmc">%s</article-id>
<title-group><article-title>%s</article-title></title-group>
<pub-date><year>2022</year></pub-date>
<abstract><p>Findings on mineral intake and overnight sleep continuity in adults.</p></abstract>
</article-meta></front></article></pmc-articleset>`, pmcid, title))
}

func newTestFiller(t *testing.T, source *fakeSource, store *fakeStore, tracker *fakeTracker, checker *fakeChecker) (*Filler, string, string) {
	t.Helper()
	dir := t.TempDir()
	artifactDir := filepath.Join(dir, "artifacts")
	reportPath := filepath.Join(dir, "research_needs.md")
	filler := New(source, store, tracker, checker, Config{
		ArtifactDir:  artifactDir,
		ReportPath:   reportPath,
		PapersPerGap: 3,
	}, nil)
	return filler, artifactDir, reportPath
}

func TestFill_IngestsAndCovers(t *testing.T) {
	const query = "magnesium glycinate sleep onset elderly"
	source := &fakeSource{
		ids: map[string][]string{query: {"101", "102"}},
		fetched: map[string][]byte{
			"101": articleXML("101", "Trial one"),
			"102": articleXML("102", "Trial two"),
		},
	}
	store := &fakeStore{}
	tracker := &fakeTracker{ingested: map[string]bool{}}
	checker := &fakeChecker{reports: map[string]Report{query: {Score: 8, Covered: true}}}

	filler, artifactDir, reportPath := newTestFiller(t, source, store, tracker, checker)
	stats, err := filler.Fill(context.Background(), []string{query})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if stats.QueriesProcessed != 1 || stats.QueriesCovered != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.PapersFound != 2 || stats.PapersDownloaded != 2 {
		t.Errorf("papers found/downloaded = %d/%d, want 2/2", stats.PapersFound, stats.PapersDownloaded)
	}
	if stats.ChunksAdded != len(store.docs) || stats.ChunksAdded == 0 {
		t.Errorf("ChunksAdded = %d, store has %d", stats.ChunksAdded, len(store.docs))
	}
	if len(tracker.marked) != 2 || tracker.marked[0] != "PMC101" {
		t.Errorf("marked = %v", tracker.marked)
	}
	if checker.paperCount[query] != 2 {
		t.Errorf("checker saw %d papers, want 2", checker.paperCount[query])
	}
	for _, pmcid := range []string{"PMC101", "PMC102"} {
		if _, err := os.Stat(filepath.Join(artifactDir, pmcid+".xml")); err != nil {
			t.Errorf("artifact for %s missing: %v", pmcid, err)
		}
	}
	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Errorf("covered query must not create a research needs report")
	}
}

func TestFill_SkipsIngestedIDs(t *testing.T) {
	const query = "potassium evening intake waking"
	source := &fakeSource{
		ids:     map[string][]string{query: {"201", "202"}},
		fetched: map[string][]byte{"202": articleXML("202", "New paper")},
	}
	tracker := &fakeTracker{ingested: map[string]bool{"PMC201": true}}
	checker := &fakeChecker{reports: map[string]Report{query: {Score: 9, Covered: true}}}

	filler, _, _ := newTestFiller(t, source, &fakeStore{}, tracker, checker)
	stats, err := filler.Fill(context.Background(), []string{query})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if stats.DuplicatesSkipped != 1 || stats.PapersDownloaded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(tracker.marked) != 1 || tracker.marked[0] != "PMC202" {
		t.Errorf("marked = %v", tracker.marked)
	}
}

func TestFill_SearchFailureIsolated(t *testing.T) {
	const broken = "calcium citrate absorption query"
	const healthy = "sodium restriction sleep quality"
	source := &fakeSource{
		searchErr: map[string]error{broken: errors.New("eutils unavailable")},
		ids:       map[string][]string{healthy: {"301"}},
		fetched:   map[string][]byte{"301": articleXML("301", "Sodium study")},
	}
	checker := &fakeChecker{reports: map[string]Report{healthy: {Score: 8, Covered: true}}}

	filler, _, reportPath := newTestFiller(t, source, &fakeStore{}, &fakeTracker{ingested: map[string]bool{}}, checker)
	stats, err := filler.Fill(context.Background(), []string{broken, healthy})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if stats.QueriesProcessed != 2 || stats.PapersDownloaded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// Zero papers for the broken query is an uncovered verdict.
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("research needs report missing: %v", err)
	}
	if !strings.Contains(string(report), broken) {
		t.Errorf("report missing broken query:\n%s", report)
	}
}

func TestFill_InsufficientQueryReportedAndArtifactsRemoved(t *testing.T) {
	const query = "magnesium threonate cognition sleep"
	source := &fakeSource{
		ids:     map[string][]string{query: {"401"}},
		fetched: map[string][]byte{"401": articleXML("401", "Weak paper")},
	}
	checker := &fakeChecker{reports: map[string]Report{
		query: {Score: 4, Issues: []string{"wrong population"}, Relevance: "tangential"},
	}}

	filler, artifactDir, reportPath := newTestFiller(t, source, &fakeStore{}, &fakeTracker{ingested: map[string]bool{}}, checker)
	stats, err := filler.Fill(context.Background(), []string{query})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if stats.QueriesCovered != 0 {
		t.Errorf("QueriesCovered = %d, want 0", stats.QueriesCovered)
	}
	if _, err := os.Stat(filepath.Join(artifactDir, "PMC401.xml")); !os.IsNotExist(err) {
		t.Error("artifact for insufficient query must be removed")
	}
	if len(stats.ArtifactsByQuery[query]) != 0 {
		t.Errorf("ArtifactsByQuery = %v", stats.ArtifactsByQuery)
	}
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("research needs report missing: %v", err)
	}
	for _, want := range []string{query, "4/10", "wrong population", "tangential"} {
		if !strings.Contains(string(report), want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestFill_StoreFailureLeavesPaperUnmarked(t *testing.T) {
	const query = "calcium dose timing insomnia"
	source := &fakeSource{
		ids:     map[string][]string{query: {"501"}},
		fetched: map[string][]byte{"501": articleXML("501", "Paper")},
	}
	tracker := &fakeTracker{ingested: map[string]bool{}}

	filler, _, _ := newTestFiller(t, source, &fakeStore{addErr: errors.New("pool closed")}, tracker, &fakeChecker{})
	stats, err := filler.Fill(context.Background(), []string{query})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if stats.PapersDownloaded != 0 || stats.ChunksAdded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(tracker.marked) != 0 {
		t.Errorf("marked = %v, want none so the paper is retried next run", tracker.marked)
	}
}

func TestFill_ContextCancelled(t *testing.T) {
	filler, _, _ := newTestFiller(t, &fakeSource{}, &fakeStore{}, &fakeTracker{}, &fakeChecker{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := filler.Fill(ctx, []string{"anything"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
