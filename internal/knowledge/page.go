// Package knowledge indexes the technical documents the assistant consults
// when a question needs expert background, and retrieves their pages.
package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Page is one page of a source document.
type Page struct {
	Source string // path relative to the documents directory
	Number int    // 1-based
	Text   string
}

// Ref returns the stable page reference "source#page".
func (p Page) Ref() string { return PageRefID(p.Source, p.Number) }

// PageRefID builds a page reference.
func PageRefID(source string, page int) string {
	return fmt.Sprintf("%s#%d", source, page)
}

// PageRef is a retrieved page.
type PageRef struct {
	Ref    string  `json:"ref"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Retriever finds the pages most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]PageRef, error)
}

// pageBreak matches a form feed or a horizontal rule line.
var pageBreak = regexp.MustCompile(`\f|\r?\n---+\r?\n`)

// SplitPages splits a document into pages. Empty pages are dropped but still
// consume a page number, so references stay stable when a page is blanked.
func SplitPages(source, text string) []Page {
	var pages []Page
	for i, chunk := range pageBreak.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		pages = append(pages, Page{Source: source, Number: i + 1, Text: chunk})
	}
	return pages
}
