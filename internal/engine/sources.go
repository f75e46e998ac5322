package engine

import (
	"fmt"
	"path/filepath"

	"github.com/quilldocs/docqa-go/internal/rag"
)

// Source is one attributed origin of an answer: a document basename and,
// for paginated formats, a 1-based page number.
type Source struct {
	// Document is the base name of the source file, or "unknown" when the
	// passage carried no origin.
	Document string `json:"document"`

	// Page is the 1-based display page, omitted for unpaginated formats.
	Page *int `json:"page,omitempty"`

	// Snippet is the opening text of the highest-ranked passage from this
	// source, for display alongside the citation.
	Snippet string `json:"snippet,omitempty"`
}

// snippetLen caps the snippet carried per source.
const snippetLen = 160

// attributeSources reduces the retrieved passages to the distinct
// (document, page) pairs they came from, in first-occurrence order. Pages
// are stored zero-based and rendered one-based here.
func attributeSources(passages []rag.Document) []Source {
	seen := make(map[string]bool, len(passages))
	sources := make([]Source, 0, len(passages))

	for _, p := range passages {
		name := "unknown"
		if p.Source != "" {
			name = filepath.Base(p.Source)
		}

		key := name + "#none"
		var display *int
		if p.Page != nil {
			key = fmt.Sprintf("%s#%d", name, *p.Page)
			d := *p.Page + 1
			display = &d
		}

		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{Document: name, Page: display, Snippet: snippet(p.Content)})
	}

	return sources
}

// snippet truncates passage content at a rune boundary.
func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLen {
		return s
	}
	return string(runes[:snippetLen]) + "…"
}
