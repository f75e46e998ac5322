package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// documentXML mirrors the paragraph/run/text nesting of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

// extractDOCX reads the main document part of an OOXML word-processing file
// and concatenates its paragraph text. DOCX has no fixed pagination, so the
// result is a single unpaginated section.
func (l *Loader) extractDOCX(_ context.Context, path string) ([]Section, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening %s: %w", path, err)
	}
	defer archive.Close()

	var raw []byte
	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("ingest: opening document part of %s: %w", path, err)
		}
		raw, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("ingest: reading document part of %s: %w", path, err)
		}
		break
	}
	if raw == nil {
		return nil, fmt.Errorf("ingest: %s has no word/document.xml part", path)
	}

	var doc documentXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ingest: parsing document XML of %s: %w", path, err)
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
	}

	return []Section{{Text: strings.TrimSpace(b.String())}}, nil
}
