package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external command and returns its stdout.
// Swappable in tests so extraction can be exercised without the real tool.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CheckPDFToolAvailable reports whether pdftotext is installed.
func CheckPDFToolAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// extractPDF shells out to pdftotext and splits its output on the form-feed
// characters it emits between pages, yielding one section per page.
func (l *Loader) extractPDF(ctx context.Context, path string) ([]Section, error) {
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		if _, lookErr := exec.LookPath("pdftotext"); lookErr != nil {
			return nil, ErrPDFToolNotFound
		}
		return nil, fmt.Errorf("ingest: pdftotext failed for %s: %w", path, err)
	}

	pages := strings.Split(string(out), "\f")
	sections := make([]Section, 0, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		p := i
		sections = append(sections, Section{Text: page, Page: &p})
	}
	return sections, nil
}
