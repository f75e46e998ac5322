// Package engine implements the question-answering orchestrator. It owns the
// pipeline state machine: documents are ingested into the vector store, an
// immutable pipeline chain is built against the current index, questions are
// rewritten against conversation history, grounded in retrieved passages,
// answered by the chat model, and attributed back to their source documents.
//
// Concurrency: ingest and clear are serialized by a mutex; ask reads a chain
// snapshot through an atomic pointer, so questions in flight during an ingest
// see either the old or the new chain, never a half-built one.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/quilldocs/docqa-go/internal/ingest"
	"github.com/quilldocs/docqa-go/internal/logging"
	"github.com/quilldocs/docqa-go/internal/rag"
)

// State is the orchestrator lifecycle state.
type State int32

const (
	// StateUninitialized means no index data and no chain.
	StateUninitialized State = iota
	// StateReady means the chain is built against the current index.
	StateReady
	// StateStale means the index changed since the chain was built.
	StateStale
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Config holds the engine configuration.
type Config struct {
	// TopK is the number of passages retrieved per question.
	// Defaults to 4 if zero.
	TopK int

	// Chunking configures the ingestion pipeline.
	Chunking *ingest.Config
}

// ConfigFromEnv builds a Config from RETRIEVAL_TOP_K and the chunking env vars.
func ConfigFromEnv() *Config {
	topK := 4
	if v := os.Getenv("RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}
	return &Config{
		TopK:     topK,
		Chunking: ingest.ConfigFromEnv(),
	}
}

// AnswerResponse is the result of a non-streaming ask.
type AnswerResponse struct {
	// Answer is the model's grounded answer text.
	Answer string `json:"answer"`

	// Sources lists the distinct documents and pages the answer drew from.
	Sources []Source `json:"sources"`
}

// Engine orchestrates ingestion, retrieval, and answer generation.
type Engine struct {
	// embedder converts text into dense vectors.
	embedder rag.Embedder

	// store persists and searches passage embeddings.
	store rag.VectorStore

	// chatModel rewrites questions and generates answers.
	chatModel model.BaseChatModel

	// retriever combines embedder and store for similarity search.
	retriever rag.Retriever

	// pipeline handles the extract/chunk/embed/store flow at ingest time.
	pipeline *ingest.Pipeline

	// topK is the number of passages retrieved per question.
	topK int

	// mu serializes ingest and clear. Chain rebuilds happen under it so a
	// rebuild always observes a fully-written index.
	mu sync.Mutex

	// chain is the current pipeline snapshot. Nil until the first
	// successful ingest or index adoption.
	chain atomic.Pointer[chain]

	// state tracks the lifecycle for observability.
	state atomic.Int32
}

// New constructs an Engine from the provided dependencies and config.
func New(embedder rag.Embedder, store rag.VectorStore, chatModel model.BaseChatModel, cfg *Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("engine: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if chatModel == nil {
		return nil, fmt.Errorf("engine: chat model must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}

	pipeline, err := ingest.NewPipeline(embedder, store, cfg.Chunking)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(embedder, store, cfg.TopK)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		embedder:  embedder,
		store:     store,
		chatModel: chatModel,
		retriever: retriever,
		pipeline:  pipeline,
		topK:      cfg.TopK,
	}
	e.state.Store(int32(StateUninitialized))
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// SupportedExtensions returns the file extensions the engine can ingest.
func (e *Engine) SupportedExtensions() []string {
	return e.pipeline.SupportedExtensions()
}

// Ingest processes the given files into the index. Files are isolated: one
// bad file is reported in its result and does not stop the rest. When at
// least one chunk was stored the pipeline chain is rebuilt against the new
// index; a batch that produced nothing leaves the engine untouched.
func (e *Engine) Ingest(ctx context.Context, paths []string) ([]ingest.FileResult, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	results, total := e.pipeline.IngestFiles(ctx, paths)
	if total > 0 {
		e.state.Store(int32(StateStale))
		e.rebuild()
		logging.FromContext(ctx).Info("engine: index updated",
			slog.Int("files", len(paths)),
			slog.Int("chunks", total),
		)
	}
	return results, total
}

// Ask answers a question grounded in the indexed documents. history carries
// the caller's prior turns for follow-up resolution.
func (e *Engine) Ask(ctx context.Context, question string, history []ChatTurn) (*AnswerResponse, error) {
	question, hist, c, err := e.prepare(ctx, question, history)
	if err != nil {
		return nil, err
	}

	rewritten, docs, err := c.run(ctx, question, hist)
	if err != nil {
		return nil, err
	}

	out, err := c.chatModel.Generate(ctx, buildPrompt(rewritten, hist, docs))
	if err != nil {
		return nil, fmt.Errorf("engine: generating answer: %w: %w", ErrGeneration, err)
	}

	return &AnswerResponse{
		Answer:  out.Content,
		Sources: attributeSources(docs),
	}, nil
}

// Clear irreversibly deletes the entire index and returns the engine to its
// initial state.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("engine: clearing index: %w", err)
	}
	e.chain.Store(nil)
	e.state.Store(int32(StateUninitialized))
	logging.FromContext(ctx).Info("engine: index cleared")
	return nil
}

// prepare validates the question and history and returns a ready chain.
func (e *Engine) prepare(ctx context.Context, question string, history []ChatTurn) (string, []*schema.Message, *chain, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, nil, fmt.Errorf("%w: question is empty", ErrInvalidQuery)
	}

	hist, err := historyMessages(history)
	if err != nil {
		return "", nil, nil, err
	}

	c, err := e.ensureReady(ctx)
	if err != nil {
		return "", nil, nil, err
	}
	return question, hist, c, nil
}

// ensureReady returns the current chain, adopting a persisted index on
// first use when the process starts against a non-empty store.
func (e *Engine) ensureReady(ctx context.Context) (*chain, error) {
	if c := e.chain.Load(); c != nil {
		return c, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.chain.Load(); c != nil {
		return c, nil
	}

	n, err := e.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: checking persisted index: %w", err)
	}
	if n == 0 {
		return nil, ErrNoKnowledgeBase
	}

	logging.FromContext(ctx).Info("engine: adopted persisted index",
		slog.Uint64("documents", n),
	)
	return e.rebuild(), nil
}

// rebuild swaps in a fresh chain snapshot. Callers must hold mu.
func (e *Engine) rebuild() *chain {
	c := &chain{
		retriever: e.retriever,
		chatModel: e.chatModel,
		topK:      e.topK,
	}
	e.chain.Store(c)
	e.state.Store(int32(StateReady))
	return c
}
