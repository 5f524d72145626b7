package pmc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoArticle means the efetch payload contained no article element.
var ErrNoArticle = errors.New("pmc: no article in response")

// Paper is the text content extracted from one JATS article.
type Paper struct {
	PMCID         string
	Title         string
	Journal       string
	Year          int
	Abstract      string
	Sections      []Section
	TableCaptions []string
}

// Section is one flattened body section.
type Section struct {
	Title string
	Text  string
}

// rawXML captures an element's inner markup for later flattening.
// JATS paragraphs carry inline elements (italic, xref, sup) whose text
// a plain chardata decode would drop.
type rawXML struct {
	Inner []byte `xml:",innerxml"`
}

type jatsSec struct {
	Title  rawXML    `xml:"title"`
	Paras  []rawXML  `xml:"p"`
	Tables []rawXML  `xml:"table-wrap>caption"`
	Secs   []jatsSec `xml:"sec"`
}

type jatsArticle struct {
	XMLName xml.Name `xml:"article"`
	Front   struct {
		JournalMeta struct {
			Titles []rawXML `xml:"journal-title-group>journal-title"`
		} `xml:"journal-meta"`
		ArticleMeta struct {
			IDs []struct {
				Type  string `xml:"pub-id-type,attr"`
				Value string `xml:",chardata"`
			} `xml:"article-id"`
			Title    rawXML `xml:"title-group>article-title"`
			PubDates []struct {
				Year string `xml:"year"`
			} `xml:"pub-date"`
			Abstracts []rawXML `xml:"abstract"`
		} `xml:"article-meta"`
	} `xml:"front"`
	Body struct {
		Secs  []jatsSec `xml:"sec"`
		Paras []rawXML  `xml:"p"`
	} `xml:"body"`
}

type jatsArticleSet struct {
	Articles []jatsArticle `xml:"article"`
}

// ParsePaper extracts the text content of the first article in an
// efetch JATS payload.
func ParsePaper(data []byte) (*Paper, error) {
	var set jatsArticleSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("pmc: parse article: %w", err)
	}
	if len(set.Articles) == 0 {
		// efetch can also return a bare <article> root.
		var single jatsArticle
		if err := xml.Unmarshal(data, &single); err == nil && single.XMLName.Local == "article" {
			set.Articles = []jatsArticle{single}
		}
	}
	if len(set.Articles) == 0 {
		return nil, ErrNoArticle
	}

	article := set.Articles[0]
	meta := article.Front.ArticleMeta

	paper := &Paper{
		Title: flattenXML(meta.Title.Inner),
	}
	for _, id := range meta.IDs {
		if id.Type == "pmc" {
			paper.PMCID = normalizePMCID(strings.TrimSpace(id.Value))
			break
		}
	}
	if len(article.Front.JournalMeta.Titles) > 0 {
		paper.Journal = flattenXML(article.Front.JournalMeta.Titles[0].Inner)
	}
	for _, date := range meta.PubDates {
		if year, err := strconv.Atoi(strings.TrimSpace(date.Year)); err == nil && year > 0 {
			paper.Year = year
			break
		}
	}
	if len(meta.Abstracts) > 0 {
		paper.Abstract = flattenXML(meta.Abstracts[0].Inner)
	}

	collectSections(paper, article.Body.Secs)
	if len(article.Body.Paras) > 0 {
		var parts []string
		for _, p := range article.Body.Paras {
			if text := flattenXML(p.Inner); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			paper.Sections = append(paper.Sections, Section{Title: "Body", Text: strings.Join(parts, " ")})
		}
	}
	return paper, nil
}

// collectSections flattens the section tree depth-first, recording
// table captions along the way.
func collectSections(paper *Paper, secs []jatsSec) {
	for _, sec := range secs {
		var parts []string
		for _, p := range sec.Paras {
			if text := flattenXML(p.Inner); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			paper.Sections = append(paper.Sections, Section{
				Title: flattenXML(sec.Title.Inner),
				Text:  strings.Join(parts, " "),
			})
		}
		for _, caption := range sec.Tables {
			if text := flattenXML(caption.Inner); text != "" {
				paper.TableCaptions = append(paper.TableCaptions, text)
			}
		}
		collectSections(paper, sec.Secs)
	}
}

// normalizePMCID ensures the canonical "PMC" prefix.
func normalizePMCID(id string) string {
	if id == "" || strings.HasPrefix(id, "PMC") {
		return id
	}
	return "PMC" + id
}

// flattenXML strips markup from an inner-XML fragment and collapses
// whitespace.
func flattenXML(inner []byte) string {
	if len(inner) == 0 {
		return ""
	}
	dec := xml.NewDecoder(bytes.NewReader(inner))
	dec.Strict = false

	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
