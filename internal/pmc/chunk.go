package pmc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bestmove/formulary/internal/evidence"
)

const (
	// chunkWordTarget sizes chunks for embedding: large enough to
	// carry a finding with its context, small enough that one chunk
	// stays on one topic.
	chunkWordTarget = 200

	// minChunkWords drops trailing fragments too small to embed
	// usefully, unless they are a section's only chunk.
	minChunkWords = 20
)

// ChunkPaper splits a paper into embedding-ready documents. The
// abstract leads, body sections follow in order, table captions come
// last as a single section. Chunk IDs are stable across re-ingestion
// of the same article.
func ChunkPaper(paper *Paper) []evidence.Document {
	sections := make([]Section, 0, len(paper.Sections)+2)
	if paper.Abstract != "" {
		sections = append(sections, Section{Title: "Abstract", Text: paper.Abstract})
	}
	sections = append(sections, paper.Sections...)
	if len(paper.TableCaptions) > 0 {
		sections = append(sections, Section{Title: "Tables", Text: strings.Join(paper.TableCaptions, " ")})
	}

	var year string
	if paper.Year > 0 {
		year = strconv.Itoa(paper.Year)
	}

	var docs []evidence.Document
	for secIdx, sec := range sections {
		for chunkIdx, text := range splitWords(sec.Text) {
			docs = append(docs, evidence.Document{
				ID:       fmt.Sprintf("%s:%d:%d", paper.PMCID, secIdx, chunkIdx),
				Content:  text,
				Title:    paper.Title,
				SourceID: paper.PMCID,
				Journal:  paper.Journal,
				Year:     year,
				Section:  sec.Title,
			})
		}
	}
	return docs
}

// splitWords breaks text into runs of about chunkWordTarget words. A
// short trailing fragment is merged into the preceding chunk.
func splitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(words); start += chunkWordTarget {
		end := min(start+chunkWordTarget, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}

	last := len(chunks) - 1
	if last > 0 && wordCount(chunks[last]) < minChunkWords {
		chunks[last-1] += " " + chunks[last]
		chunks = chunks[:last]
	}
	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
