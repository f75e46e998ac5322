package ingest

import "errors"

var (
	// ErrUnsupportedFormat is returned when a file's extension has no
	// registered extractor. Match with errors.Is.
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")

	// ErrEmptyDocument is returned when extraction succeeds but yields no
	// usable text. Match with errors.Is.
	ErrEmptyDocument = errors.New("ingest: document contains no extractable text")

	// ErrPDFToolNotFound is returned when the pdftotext binary is not on PATH.
	ErrPDFToolNotFound = errors.New("ingest: pdftotext not found on PATH (install poppler-utils)")
)
