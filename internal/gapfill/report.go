package gapfill

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// appendResearchNeed appends one unanswered gap to the markdown
// report. A file lock serializes writers, since concurrent improvement
// runs may share the report.
func appendResearchNeed(path, query string, report Report) error {
	if path == "" {
		return nil
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock research needs report: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open research needs report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString("# Research Needs\n\nGap queries the literature search could not cover.\n")
	}
	fmt.Fprintf(&b, "\n## %s\n\n", query)
	fmt.Fprintf(&b, "- Recorded: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Quality score: %d/10\n", report.Score)
	for _, issue := range report.Issues {
		fmt.Fprintf(&b, "- Issue: %s\n", issue)
	}
	if report.Relevance != "" {
		fmt.Fprintf(&b, "- Assessment: %s\n", report.Relevance)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append research needs report: %w", err)
	}
	return nil
}
