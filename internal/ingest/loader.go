package ingest

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Section is a unit of extracted text with provenance. Paginated formats
// produce one Section per page; everything else produces a single Section
// with no page.
type Section struct {
	// Text is the extracted plain text.
	Text string

	// Page is the zero-based page index, nil for unpaginated formats.
	Page *int
}

// extractor converts one file into its text sections.
type extractor func(ctx context.Context, path string) ([]Section, error)

// Loader maps file extensions to format-specific text extractors.
type Loader struct {
	extractors map[string]extractor

	// runner executes external extraction tools. Swappable for tests.
	runner CommandRunner
}

// NewLoader constructs a Loader with all built-in extractors registered.
func NewLoader() *Loader {
	l := &Loader{runner: execRunner{}}
	l.extractors = map[string]extractor{
		".txt":  l.extractPlain,
		".md":   l.extractPlain,
		".html": l.extractHTML,
		".htm":  l.extractHTML,
		".pdf":  l.extractPDF,
		".docx": l.extractDOCX,
	}
	return l
}

// SupportedExtensions returns the registered extensions in sorted order.
func (l *Loader) SupportedExtensions() []string {
	exts := make([]string, 0, len(l.extractors))
	for ext := range l.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load extracts the text sections of the file at path. It fails with
// ErrUnsupportedFormat for unregistered extensions and ErrEmptyDocument when
// extraction yields no text.
func (l *Loader) Load(ctx context.Context, path string) ([]Section, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ex, ok := l.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	sections, err := ex(ctx, path)
	if err != nil {
		return nil, err
	}

	kept := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s.Text) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filepath.Base(path))
	}
	return kept, nil
}

// extractPlain reads the whole file as a single unpaginated section.
func (l *Loader) extractPlain(_ context.Context, path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	return []Section{{Text: string(data)}}, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips markup and returns the visible text as one section.
func (l *Loader) extractHTML(_ context.Context, path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	text := scriptRe.ReplaceAllString(string(data), "")
	text = tagRe.ReplaceAllString(text, "\n")
	text = html.UnescapeString(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankRe.ReplaceAllString(text, "\n\n")

	return []Section{{Text: strings.TrimSpace(text)}}, nil
}
