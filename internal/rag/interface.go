// Package rag defines the interfaces for the retrieval side of the document
// question-answering pipeline: vector storage, passage retrieval, and
// embedding. Concrete implementations (Qdrant, the embedder backends) satisfy
// these interfaces so the engine layer never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// ErrEmbedding marks failures of the external embedding service. Callers
// match it with errors.Is after %w wrapping.
var ErrEmbedding = errors.New("embedding service error")

// Document represents a stored or retrieved passage of source text.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the origin file path of the document this chunk came from.
	Source string

	// Page is the zero-based page number within the source document, when
	// the format is paginated (PDF). Nil for unpaginated formats.
	Page *int

	// Metadata holds arbitrary key-value pairs (chunk index, format, etc.).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching passage
// embeddings. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings must be parallel to docs — embeddings[i] is the
	// vector for docs[i]. Duplicate calls with the same IDs overwrite.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents ranked by descending similarity to
	// the query embedding. Fewer results when the store holds fewer items;
	// an empty slice (never an error) when the store is empty.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Count returns the number of documents currently stored.
	Count(ctx context.Context) (uint64, error)

	// Clear irreversibly deletes the entire collection. Subsequent Search
	// calls return empty until new Upsert calls.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Single-text embedding is the one-element batch case.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the engine to fetch relevant
// passages for a query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
