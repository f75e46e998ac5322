package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/logging"
	"github.com/quilldocs/docqa-go/internal/store"
)

// handleQuery handles POST /api/query: one question, one JSON answer with
// its source attribution.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, history, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.engine.Ask(r.Context(), req.Question, history)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeError).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcomeError).Observe(time.Since(start).Seconds())
		writeEngineError(w, r, err)
		return
	}
	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())

	s.persistTurns(r, req, resp.Answer)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error("query: encode error", slog.Any("error", err))
	}
}

// handleStream handles POST /api/stream. The response is newline-delimited
// JSON: one source event after retrieval, answer fragments as the model
// produces them, and an error event if any stage fails mid-stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, history, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	flusher, okF := w.(http.Flusher)
	if !okF {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	events, err := s.engine.AskStream(r.Context(), req.Question, history)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeError).Inc()
		writeEngineError(w, r, err)
		return
	}

	s.metrics.queryActiveStreams.Inc()
	defer s.metrics.queryActiveStreams.Dec()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	enc := json.NewEncoder(w)
	outcome := outcomeOK
	var answer strings.Builder
	for ev := range events {
		var out streamEvent
		switch ev.Type {
		case engine.EventSource:
			out = streamEvent{Type: string(ev.Type), Sources: ev.Sources}
		case engine.EventAnswer:
			answer.WriteString(ev.Content)
			out = streamEvent{Type: string(ev.Type), Content: ev.Content}
		case engine.EventError:
			outcome = outcomeError
			out = streamEvent{Type: string(ev.Type), Content: ev.Err.Error()}
		}
		if err := enc.Encode(out); err != nil {
			// Client went away; the engine goroutine stops via r.Context().
			outcome = outcomeError
			break
		}
		flusher.Flush()
	}

	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if outcome == outcomeOK {
		s.persistTurns(r, req, answer.String())
	}
}

// decodeQuery parses and validates the shared query request body, resolving
// server-side conversation history when a conversation ID is supplied.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*queryRequest, []engine.ChatTurn, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return nil, nil, false
	}

	// Explicit history in the request wins; the store is consulted only when
	// the caller sent none.
	history := req.History
	if len(req.History) == 0 && req.ConversationID != "" && s.cfg.History != nil {
		turns, err := s.cfg.History.Recent(r.Context(), req.ConversationID, s.cfg.HistoryDepth)
		if err != nil {
			// History is an aid, not a prerequisite; answer without it.
			logging.FromContext(r.Context()).Warn("query: loading conversation history failed",
				slog.String("conversation_id", req.ConversationID),
				slog.Any("error", err),
			)
		} else {
			history = make([]engine.ChatTurn, 0, len(turns))
			for _, t := range turns {
				history = append(history, engine.ChatTurn{Role: engine.Role(t.Role), Content: t.Content})
			}
		}
	}

	return &req, history, true
}

// persistTurns appends the question/answer pair to the conversation store
// when one is configured and the request carries a conversation ID.
// Persistence failures are logged, never surfaced to the client.
func (s *Server) persistTurns(r *http.Request, req *queryRequest, answer string) {
	if req.ConversationID == "" || s.cfg.History == nil || answer == "" {
		return
	}
	ctx := r.Context()
	log := logging.FromContext(ctx)
	if err := s.cfg.History.Append(ctx, req.ConversationID, store.RoleUser, req.Question); err != nil {
		log.Warn("query: persisting user turn failed", slog.Any("error", err))
		return
	}
	if err := s.cfg.History.Append(ctx, req.ConversationID, store.RoleAssistant, answer); err != nil {
		log.Warn("query: persisting assistant turn failed", slog.Any("error", err))
	}
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("query failed", slog.Any("error", err))

	switch {
	case errors.Is(err, engine.ErrInvalidQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNoKnowledgeBase):
		http.Error(w, "no documents have been ingested yet", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
