// Package gapfill turns knowledge gaps into corpus growth: for each
// gap query it searches PubMed Central, downloads new open-access
// papers, chunks them into the evidence store, and triages whether the
// retrieved material actually covers the gap.
//
// Every external step is isolated per query and per paper. One dead
// search or unparseable article never aborts the batch; it is logged
// and reflected in the returned Stats.
package gapfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bestmove/formulary/internal/evidence"
	"github.com/bestmove/formulary/internal/pmc"
)

// LiteratureSource finds and downloads articles.
type LiteratureSource interface {
	Search(ctx context.Context, query string, max int) ([]string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// ChunkStore receives the chunked article text.
type ChunkStore interface {
	Add(ctx context.Context, docs []evidence.Document) error
}

// Tracker remembers which articles are already in the corpus.
type Tracker interface {
	IsIngested(ctx context.Context, pmcid string) (bool, error)
	MarkIngested(ctx context.Context, pmcid, title, gapQuery string) error
}

// QualityChecker judges whether downloaded papers cover a gap.
type QualityChecker interface {
	Check(ctx context.Context, query string, papers []*pmc.Paper) (Report, error)
}

// Stats summarizes one Fill run.
type Stats struct {
	QueriesProcessed  int
	QueriesCovered    int
	PapersFound       int
	PapersDownloaded  int
	DuplicatesSkipped int
	ChunksAdded       int
	ArtifactsByQuery  map[string][]string
}

// Filler drives the search/download/ingest/triage cycle.
type Filler struct {
	source       LiteratureSource
	store        ChunkStore
	tracker      Tracker
	checker      QualityChecker
	artifactDir  string
	reportPath   string
	papersPerGap int
	logger       *slog.Logger
}

// Config carries the filesystem and sizing knobs.
type Config struct {
	ArtifactDir  string
	ReportPath   string
	PapersPerGap int
}

// New creates a Filler. PapersPerGap below 1 defaults to 3.
func New(source LiteratureSource, store ChunkStore, tracker Tracker, checker QualityChecker, cfg Config, logger *slog.Logger) *Filler {
	if cfg.PapersPerGap < 1 {
		cfg.PapersPerGap = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{
		source:       source,
		store:        store,
		tracker:      tracker,
		checker:      checker,
		artifactDir:  cfg.ArtifactDir,
		reportPath:   cfg.ReportPath,
		papersPerGap: cfg.PapersPerGap,
		logger:       logger,
	}
}

// Fill processes each gap query in order. Covered queries are counted
// in Stats; insufficient ones are appended to the research-needs
// report and their downloaded artifacts removed.
func (f *Filler) Fill(ctx context.Context, queries []string) (*Stats, error) {
	if f.artifactDir != "" {
		if err := os.MkdirAll(f.artifactDir, 0o750); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}

	stats := &Stats{ArtifactsByQuery: make(map[string][]string)}
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.QueriesProcessed++
		f.fillQuery(ctx, query, stats)
	}
	return stats, nil
}

// fillQuery handles one gap query end to end.
func (f *Filler) fillQuery(ctx context.Context, query string, stats *Stats) {
	ids, err := f.source.Search(ctx, query, f.papersPerGap)
	if err != nil {
		f.logger.Warn("gap search failed", "query", query, "error", err)
	}
	stats.PapersFound += len(ids)

	var papers []*pmc.Paper
	for _, id := range ids {
		paper, ok := f.ingestPaper(ctx, id, query, stats)
		if ok {
			papers = append(papers, paper)
		}
	}

	report, err := f.checker.Check(ctx, query, papers)
	if err != nil {
		f.logger.Warn("quality check failed, treating gap as open", "query", query, "error", err)
		report = Report{Issues: []string{"quality check failed: " + err.Error()}}
	}

	if report.Covered {
		stats.QueriesCovered++
		f.logger.Info("gap covered", "query", query, "score", report.Score, "papers", len(papers))
		return
	}

	f.logger.Info("gap not covered", "query", query, "score", report.Score, "issues", len(report.Issues))
	if err := appendResearchNeed(f.reportPath, query, report); err != nil {
		f.logger.Warn("research needs report update failed", "query", query, "error", err)
	}
	f.removeArtifacts(query, stats)
}

// ingestPaper downloads, archives, chunks, and records one article.
// The tracker is marked only after the chunks are stored, so a failed
// Add is retried on the next run.
func (f *Filler) ingestPaper(ctx context.Context, id, query string, stats *Stats) (*pmc.Paper, bool) {
	pmcid := canonicalID(id)

	ingested, err := f.tracker.IsIngested(ctx, pmcid)
	if err != nil {
		f.logger.Warn("ingestion lookup failed", "pmcid", pmcid, "error", err)
		return nil, false
	}
	if ingested {
		stats.DuplicatesSkipped++
		return nil, false
	}

	raw, err := f.source.Fetch(ctx, id)
	if err != nil {
		f.logger.Warn("article fetch failed", "pmcid", pmcid, "error", err)
		return nil, false
	}

	paper, err := pmc.ParsePaper(raw)
	if err != nil {
		f.logger.Warn("article parse failed", "pmcid", pmcid, "error", err)
		return nil, false
	}
	if paper.PMCID == "" {
		paper.PMCID = pmcid
	}

	if f.artifactDir != "" {
		path := filepath.Join(f.artifactDir, paper.PMCID+".xml")
		if err := os.WriteFile(path, raw, 0o640); err != nil {
			f.logger.Warn("artifact write failed", "path", path, "error", err)
		} else {
			stats.ArtifactsByQuery[query] = append(stats.ArtifactsByQuery[query], path)
		}
	}

	docs := pmc.ChunkPaper(paper)
	if len(docs) == 0 {
		f.logger.Warn("article yielded no chunks", "pmcid", paper.PMCID)
		return nil, false
	}
	if err := f.store.Add(ctx, docs); err != nil {
		f.logger.Warn("chunk store add failed", "pmcid", paper.PMCID, "error", err)
		return nil, false
	}

	if err := f.tracker.MarkIngested(ctx, paper.PMCID, paper.Title, query); err != nil {
		f.logger.Warn("ingestion record failed", "pmcid", paper.PMCID, "error", err)
	}

	stats.PapersDownloaded++
	stats.ChunksAdded += len(docs)
	return paper, true
}

// removeArtifacts deletes the XML files saved for an insufficient
// query. The chunks stay in the corpus; only the raw archive goes.
func (f *Filler) removeArtifacts(query string, stats *Stats) {
	for _, path := range stats.ArtifactsByQuery[query] {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("artifact removal failed", "path", path, "error", err)
		}
	}
	delete(stats.ArtifactsByQuery, query)
}

// canonicalID normalizes esearch IDs, which come back without the PMC
// prefix.
func canonicalID(id string) string {
	if len(id) >= 3 && id[:3] == "PMC" {
		return id
	}
	return "PMC" + id
}
