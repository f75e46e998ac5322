// Package ingest implements the document ingestion pipeline: extract text
// from uploaded files, split it into overlapping chunks, embed each chunk,
// and upsert the results into the vector store. Files are processed in
// isolation — one bad file never aborts the batch.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quilldocs/docqa-go/internal/logging"
	"github.com/quilldocs/docqa-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to 100 if zero.
	ChunkOverlap int
}

// ConfigFromEnv builds a Config from CHUNK_SIZE and CHUNK_OVERLAP.
func ConfigFromEnv() *Config {
	return &Config{
		ChunkSize:    envInt("CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 100),
	}
}

// FileStatus reports the outcome of ingesting one file.
type FileStatus string

const (
	// StatusOK means the file was fully ingested.
	StatusOK FileStatus = "ok"
	// StatusError means the file was skipped; Err holds the cause.
	StatusError FileStatus = "error"
)

// FileResult is the per-file outcome of an ingestion batch.
type FileResult struct {
	// Filename is the base name of the processed file.
	Filename string

	// Status is ok or error.
	Status FileStatus

	// Chunks is the number of chunks stored for this file.
	Chunks int

	// Err is the failure cause when Status is error, nil otherwise.
	Err error
}

// Pipeline orchestrates the extract → chunk → embed → upsert flow.
type Pipeline struct {
	// loader extracts text sections from files by extension.
	loader *Loader

	// splitter cuts extracted text into overlapping chunks.
	splitter *Splitter

	// embedder converts chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 100
	}

	return &Pipeline{
		loader:   NewLoader(),
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder: embedder,
		store:    store,
	}, nil
}

// SupportedExtensions returns the file extensions the pipeline can ingest.
func (p *Pipeline) SupportedExtensions() []string {
	return p.loader.SupportedExtensions()
}

// IngestFiles processes each file independently and returns one result per
// file in input order, plus the total number of chunks stored. A failed file
// is reported in its result and does not stop the remaining files.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) ([]FileResult, int) {
	log := logging.FromContext(ctx)

	results := make([]FileResult, 0, len(paths))
	total := 0
	for _, path := range paths {
		name := filepath.Base(path)
		n, err := p.ingestOne(ctx, path)
		if err != nil {
			log.Warn("ingest: file failed",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			results = append(results, FileResult{Filename: name, Status: StatusError, Err: err})
			continue
		}
		log.Info("ingest: file stored",
			slog.String("file", name),
			slog.Int("chunks", n),
		)
		results = append(results, FileResult{Filename: name, Status: StatusOK, Chunks: n})
		total += n
	}
	return results, total
}

// ingestOne extracts, chunks, embeds, and stores a single file, returning
// the number of chunks written.
func (p *Pipeline) ingestOne(ctx context.Context, path string) (int, error) {
	sections, err := p.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}

	var docs []rag.Document
	var texts []string
	// Chunking never crosses a section boundary, so page provenance
	// survives splitting.
	for _, sec := range sections {
		for i, chunk := range p.splitter.Split(sec.Text) {
			docs = append(docs, rag.Document{
				ID:      chunkID(path, sec.Page, i),
				Content: chunk,
				Source:  path,
				Page:    sec.Page,
				Metadata: map[string]string{
					"chunk_index": strconv.Itoa(i),
				},
			})
			texts = append(texts, chunk)
		}
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, filepath.Base(path))
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingest: embedding %s: %w", filepath.Base(path), err)
	}

	if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
		return 0, fmt.Errorf("ingest: storing %s: %w", filepath.Base(path), err)
	}

	return len(docs), nil
}

// chunkID generates a deterministic ID for a chunk from its source path,
// page, and position. Re-ingesting the same file overwrites rather than
// duplicates.
func chunkID(source string, page *int, index int) string {
	pg := "none"
	if page != nil {
		pg = strconv.Itoa(*page)
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%s#%d", source, pg, index)))
	return fmt.Sprintf("%x", h[:16])
}

// envInt reads an integer env var with a fallback.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
