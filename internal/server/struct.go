package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/ingest"
	"github.com/quilldocs/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// UploadDir is where uploaded documents are written before ingestion.
	// Defaults to a "uploads" directory under the working directory.
	UploadDir string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// History is the optional conversation store. When set and a request
	// carries a conversation_id, prior turns are loaded from it and the new
	// turn pair is persisted after the answer completes.
	History store.ConversationStore
	// HistoryDepth is the number of prior turns replayed per conversation.
	// Defaults to 10 if zero.
	HistoryDepth int
	// Registry receives the server's Prometheus metrics. If nil a fresh
	// registry (with the standard Go and process collectors) is created.
	Registry *prometheus.Registry
}

// qaEngine is the interface the handlers call into. *engine.Engine satisfies
// it; tests inject a fake.
type qaEngine interface {
	// Ask answers a question grounded in the indexed documents.
	Ask(ctx context.Context, question string, history []engine.ChatTurn) (*engine.AnswerResponse, error)
	// AskStream answers a question as a stream of source/answer events.
	AskStream(ctx context.Context, question string, history []engine.ChatTurn) (<-chan engine.Event, error)
	// Ingest indexes the given files with per-file isolation.
	Ingest(ctx context.Context, paths []string) ([]ingest.FileResult, int)
	// Clear deletes the entire index.
	Clear(ctx context.Context) error
	// SupportedExtensions lists the ingestable file extensions.
	SupportedExtensions() []string
	// State reports the engine lifecycle state.
	State() engine.State
}

// Server is the HTTP server that exposes the question-answering engine.
type Server struct {
	// engine answers questions and ingests documents.
	engine qaEngine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// registry is the Prometheus registry served at GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query and POST /api/stream.
type queryRequest struct {
	// Question is the user's natural-language question.
	Question string `json:"question"`
	// History carries the caller's prior turns. When non-empty it takes
	// precedence over stored history for ConversationID.
	History []engine.ChatTurn `json:"history,omitempty"`
	// ConversationID selects a server-side conversation thread.
	ConversationID string `json:"conversation_id,omitempty"`
}

// streamEvent is one newline-delimited JSON event on POST /api/stream.
type streamEvent struct {
	// Type is "source", "answer", or "error".
	Type string `json:"type"`
	// Content is the answer fragment or error message.
	Content string `json:"content,omitempty"`
	// Sources is set on the source event.
	Sources []engine.Source `json:"sources,omitempty"`
}

// uploadResult is the per-file JSON result for POST /api/upload.
type uploadResult struct {
	// Filename is the uploaded file's base name.
	Filename string `json:"filename"`
	// Status is "ok" or "error".
	Status string `json:"status"`
	// Chunks is the number of chunks stored for this file.
	Chunks int `json:"chunks"`
	// Error is the failure reason when Status is "error".
	Error string `json:"error,omitempty"`
}

// uploadResponse is the JSON body for POST /api/upload.
type uploadResponse struct {
	// Files holds the per-file results in upload order.
	Files []uploadResult `json:"files"`
	// TotalChunks is the number of chunks stored across all files.
	TotalChunks int `json:"total_chunks"`
}
