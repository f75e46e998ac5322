package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/ingest"
	"github.com/quilldocs/docqa-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fake engine for handler tests
// ---------------------------------------------------------------------------

// fakeEngine implements the qaEngine interface for tests.
type fakeEngine struct {
	// answer is returned by Ask on success.
	answer *engine.AnswerResponse
	// askErr is returned by Ask and AskStream when set.
	askErr error
	// events is replayed on the channel returned by AskStream.
	events []engine.Event
	// ingestResults and ingestTotal are returned by Ingest.
	ingestResults []ingest.FileResult
	ingestTotal   int
	// clearErr is returned by Clear.
	clearErr error
	// state is returned by State.
	state engine.State

	// lastQuestion and lastHistory record the most recent Ask/AskStream call.
	lastQuestion string
	lastHistory  []engine.ChatTurn
	// ingestPaths records the paths passed to Ingest.
	ingestPaths []string
}

func (f *fakeEngine) Ask(_ context.Context, question string, history []engine.ChatTurn) (*engine.AnswerResponse, error) {
	f.lastQuestion = question
	f.lastHistory = history
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.answer, nil
}

func (f *fakeEngine) AskStream(_ context.Context, question string, history []engine.ChatTurn) (<-chan engine.Event, error) {
	f.lastQuestion = question
	f.lastHistory = history
	if f.askErr != nil {
		return nil, f.askErr
	}
	ch := make(chan engine.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

func (f *fakeEngine) Ingest(_ context.Context, paths []string) ([]ingest.FileResult, int) {
	f.ingestPaths = append(f.ingestPaths, paths...)
	return f.ingestResults, f.ingestTotal
}

func (f *fakeEngine) Clear(_ context.Context) error { return f.clearErr }

func (f *fakeEngine) SupportedExtensions() []string {
	return []string{".txt", ".md", ".pdf", ".docx"}
}

func (f *fakeEngine) State() engine.State { return f.state }

// newTestServer builds a *Server wired with the given fake engine and an
// isolated Prometheus registry.
func newTestServer(t *testing.T, eng *fakeEngine) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return &Server{
		engine:  eng,
		cfg:     &Config{UploadDir: t.TempDir(), HistoryDepth: 10},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// POST /api/query — validation error paths
// ---------------------------------------------------------------------------

func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{})
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query", `not-json`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{})
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query", `{"question":"   "}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/query — engine error mapping
// ---------------------------------------------------------------------------

func TestHandleQuery_NoKnowledgeBase(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{askErr: engine.ErrNoKnowledgeBase})
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query", `{"question":"what is X?"}`))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for empty knowledge base, got %d", w.Code)
	}
}

func TestHandleQuery_InvalidQueryError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{askErr: engine.ErrInvalidQuery})
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query", `{"question":"x"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_GenerationError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{askErr: errors.New("backend down")})
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query", `{"question":"what is X?"}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/query — happy path
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	page := 2
	eng := &fakeEngine{answer: &engine.AnswerResponse{
		Answer: "The capital is Paris.",
		Sources: []engine.Source{
			{Document: "geography.pdf", Page: &page},
		},
	}}
	s := newTestServer(t, eng)
	w := httptest.NewRecorder()

	s.handleQuery(w, postJSON("/api/query",
		`{"question":"What is the capital?","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp engine.AnswerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The capital is Paris." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Document != "geography.pdf" {
		t.Errorf("sources: got %+v", resp.Sources)
	}

	if eng.lastQuestion != "What is the capital?" {
		t.Errorf("engine received question %q", eng.lastQuestion)
	}
	if len(eng.lastHistory) != 2 || eng.lastHistory[0].Role != engine.RoleUser {
		t.Errorf("engine received history %+v", eng.lastHistory)
	}
}

// ---------------------------------------------------------------------------
// Server-side conversation history
// ---------------------------------------------------------------------------

// fakeHistory implements store.ConversationStore in memory.
type fakeHistory struct {
	turns     map[string][]store.Turn
	recentErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{turns: make(map[string][]store.Turn)}
}

func (f *fakeHistory) Append(_ context.Context, id string, role store.Role, content string) error {
	f.turns[id] = append(f.turns[id], store.Turn{Role: role, Content: content})
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, id string, n int) ([]store.Turn, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	turns := f.turns[id]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func (f *fakeHistory) Delete(_ context.Context, id string) error {
	delete(f.turns, id)
	return nil
}

func (f *fakeHistory) Close() error { return nil }

func TestHandleQuery_ConversationHistoryLoaded(t *testing.T) {
	t.Parallel()

	hist := newFakeHistory()
	hist.turns["conv-1"] = []store.Turn{
		{Role: store.RoleUser, Content: "What is Go?"},
		{Role: store.RoleAssistant, Content: "A programming language."},
	}

	eng := &fakeEngine{answer: &engine.AnswerResponse{Answer: "It was released in 2009."}}
	s := newTestServer(t, eng)
	s.cfg.History = hist

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query",
		`{"question":"When was it released?","conversation_id":"conv-1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	if len(eng.lastHistory) != 2 {
		t.Fatalf("expected 2 history turns from store, got %d", len(eng.lastHistory))
	}
	if eng.lastHistory[0].Content != "What is Go?" {
		t.Errorf("first turn: got %q", eng.lastHistory[0].Content)
	}

	// The new question/answer pair is persisted after answering.
	got := hist.turns["conv-1"]
	if len(got) != 4 {
		t.Fatalf("expected 4 persisted turns, got %d", len(got))
	}
	if got[2].Role != store.RoleUser || got[2].Content != "When was it released?" {
		t.Errorf("persisted user turn: %+v", got[2])
	}
	if got[3].Role != store.RoleAssistant || got[3].Content != "It was released in 2009." {
		t.Errorf("persisted assistant turn: %+v", got[3])
	}
}

// TestHandleQuery_ExplicitHistoryWinsOverStored verifies that history sent
// in the request body is used as-is; the conversation store is consulted
// only when the request carries none.
func TestHandleQuery_ExplicitHistoryWinsOverStored(t *testing.T) {
	t.Parallel()

	hist := newFakeHistory()
	hist.turns["conv-9"] = []store.Turn{
		{Role: store.RoleUser, Content: "stored question"},
		{Role: store.RoleAssistant, Content: "stored answer"},
	}

	eng := &fakeEngine{answer: &engine.AnswerResponse{Answer: "ok"}}
	s := newTestServer(t, eng)
	s.cfg.History = hist

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query",
		`{"question":"next?","conversation_id":"conv-9","history":[{"role":"user","content":"explicit turn"}]}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if len(eng.lastHistory) != 1 || eng.lastHistory[0].Content != "explicit turn" {
		t.Errorf("engine must receive the explicit history, got %+v", eng.lastHistory)
	}
}

// TestHandleQuery_HistoryLoadFailureIsNonFatal verifies that a broken
// conversation store degrades to answering without history instead of
// failing the request.
func TestHandleQuery_HistoryLoadFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	hist := newFakeHistory()
	hist.recentErr = errors.New("disk io error")

	eng := &fakeEngine{answer: &engine.AnswerResponse{Answer: "still works"}}
	s := newTestServer(t, eng)
	s.cfg.History = hist

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query",
		`{"question":"hello?","conversation_id":"conv-2"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite history failure, got %d", w.Code)
	}
	if len(eng.lastHistory) != 0 {
		t.Errorf("expected empty history, got %+v", eng.lastHistory)
	}
}

// ---------------------------------------------------------------------------
// POST /api/stream — NDJSON event stream
// ---------------------------------------------------------------------------

// decodeStreamEvents parses a newline-delimited JSON response body.
func decodeStreamEvents(t *testing.T, body string) []streamEvent {
	t.Helper()
	var events []streamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHandleStream_SourceThenAnswers(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{events: []engine.Event{
		{Type: engine.EventSource, Sources: []engine.Source{{Document: "doc.txt"}}},
		{Type: engine.EventAnswer, Content: "The answer "},
		{Type: engine.EventAnswer, Content: "is 42."},
	}}
	s := newTestServer(t, eng)
	w := httptest.NewRecorder()

	s.handleStream(w, postJSON("/api/stream", `{"question":"what is the answer?"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type: got %q", ct)
	}

	events := decodeStreamEvents(t, w.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != "source" {
		t.Errorf("first event: expected source, got %q", events[0].Type)
	}
	if len(events[0].Sources) != 1 || events[0].Sources[0].Document != "doc.txt" {
		t.Errorf("source event: %+v", events[0])
	}

	var answer strings.Builder
	for _, ev := range events[1:] {
		if ev.Type != "answer" {
			t.Errorf("expected answer event, got %q", ev.Type)
		}
		answer.WriteString(ev.Content)
	}
	if answer.String() != "The answer is 42." {
		t.Errorf("reassembled answer: %q", answer.String())
	}
}

func TestHandleStream_ErrorEvent(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{events: []engine.Event{
		{Type: engine.EventError, Err: errors.New("model unavailable")},
	}}
	s := newTestServer(t, eng)
	w := httptest.NewRecorder()

	s.handleStream(w, postJSON("/api/stream", `{"question":"anything"}`))

	events := decodeStreamEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != "error" {
		t.Errorf("expected error event, got %q", events[0].Type)
	}
	if !strings.Contains(events[0].Content, "model unavailable") {
		t.Errorf("error content: %q", events[0].Content)
	}
}

// TestHandleStream_ValidationBeforeStreaming verifies that validation errors
// are returned as plain HTTP errors, not stream events.
func TestHandleStream_ValidationBeforeStreaming(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{askErr: engine.ErrNoKnowledgeBase})
	w := httptest.NewRecorder()

	s.handleStream(w, postJSON("/api/stream", `{"question":"early failure"}`))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 before any stream output, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct == "application/x-ndjson" {
		t.Errorf("stream headers must not be set on pre-stream errors")
	}
}

func TestHandleStream_PersistsFullAnswer(t *testing.T) {
	t.Parallel()

	hist := newFakeHistory()
	eng := &fakeEngine{events: []engine.Event{
		{Type: engine.EventSource, Sources: nil},
		{Type: engine.EventAnswer, Content: "stream"},
		{Type: engine.EventAnswer, Content: "ed answer"},
	}}
	s := newTestServer(t, eng)
	s.cfg.History = hist

	w := httptest.NewRecorder()
	s.handleStream(w, postJSON("/api/stream",
		`{"question":"q","conversation_id":"conv-3"}`))

	got := hist.turns["conv-3"]
	if len(got) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(got))
	}
	if got[1].Content != "streamed answer" {
		t.Errorf("persisted answer: %q", got[1].Content)
	}
}
