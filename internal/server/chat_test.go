package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/recruitops/screener-go/internal/chatbot"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fake querier for chat handler tests
// ---------------------------------------------------------------------------

// fakeQuerier implements the querier interface for tests.
// It writes a fixed response to the writer and returns configurable values.
type fakeQuerier struct {
	// answer is written verbatim to the writer on each Query call.
	answer string
	// status is the result status reported after streaming.
	status chatbot.Status
	// sources is the list of retrieved document IDs reported in the result.
	sources []string
	// err is returned as the error value; nothing is written when set.
	err error
	// lastSession records the session ID of the most recent call.
	lastSession string
}

func (f *fakeQuerier) Query(_ context.Context, sessionID, _ string, w io.Writer) (*chatbot.Result, error) {
	f.lastSession = sessionID
	if f.err != nil {
		return nil, f.err
	}
	_, _ = fmt.Fprint(w, f.answer)
	status := f.status
	if status == "" {
		status = chatbot.StatusOK
	}
	return &chatbot.Result{Status: status, Answer: f.answer, Sources: f.sources}, nil
}

// newTestServer builds a *Server wired with the given querier fake, an
// in-memory SQLite store, and a fresh Prometheus registry so tests stay
// hermetic.
func newTestServer(t *testing.T, q querier) *Server {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return &Server{
		bot:      q,
		sessions: st,
		feedback: st,
		mem:      memory.NewWindow(6),
		cfg:      &Config{Port: 8080, ChatTimeout: time.Minute},
		log:      slog.Default(),
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

// ---------------------------------------------------------------------------
// SSE framing
// ---------------------------------------------------------------------------

// TestSSEWriter verifies that chunk content survives SSE framing exactly: a
// client that joins the data lines of each event with "\n" reconstructs the
// original bytes, including newlines at chunk boundaries.
func TestSSEWriter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		chunk string
		want  string
	}{
		{"plain token", "hello", "data: hello\n\n"},
		{"trailing newline", "hello\n", "data: hello\ndata: \n\n"},
		{"blank line between paragraphs", "one\n\ntwo", "data: one\ndata: \ndata: two\n\n"},
		{"lone newline", "\n", "data: \ndata: \n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			sw := &sseWriter{w: rec, flusher: rec}

			n, err := sw.Write([]byte(tc.chunk))
			if err != nil {
				t.Fatalf("write: %v", err)
			}
			if n != len(tc.chunk) {
				t.Errorf("n = %d, want %d", n, len(tc.chunk))
			}
			if got := rec.Body.String(); got != tc.want {
				t.Errorf("framed output = %q, want %q", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths (no bot needed)
// ---------------------------------------------------------------------------

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"session_id":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_UnknownSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{answer: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hello","session_id":"42"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path (fake querier, SSE response)
// ---------------------------------------------------------------------------

// TestHandleChat_Success verifies that a valid request produces an SSE stream
// with session, status, sources, and done events, and that the turn is
// persisted to the session transcript. httptest.ResponseRecorder implements
// http.Flusher so the handler's flusher check passes without a real connection.
func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{
		answer:  "The candidate matches the role.",
		sources: []string{"backend_engineer.pdf"},
	}
	s := newTestServer(t, q)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"Is this candidate a fit?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "event: session\ndata: 1\n") {
		t.Errorf("expected session event announcing id 1, got: %s", body)
	}
	if !strings.Contains(body, "data: The candidate matches the role.") {
		t.Errorf("expected streamed answer in body, got: %s", body)
	}
	if !strings.Contains(body, "event: status\ndata: ok\n") {
		t.Errorf("expected status event in body, got: %s", body)
	}
	if !strings.Contains(body, "event: sources") || !strings.Contains(body, "backend_engineer.pdf") {
		t.Errorf("expected sources event in body, got: %s", body)
	}
	if !strings.Contains(body, "event: done") || !strings.Contains(body, "[DONE]") {
		t.Errorf("expected done event with [DONE] sentinel, got: %s", body)
	}
	if q.lastSession != "1" {
		t.Errorf("querier session: expected %q, got %q", "1", q.lastSession)
	}

	// The turn must be persisted with a title derived from the first message.
	sess, err := s.sessions.GetSession(req.Context(), 1)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Title != "Is this ca..." {
		t.Errorf("title: expected %q, got %q", "Is this ca...", sess.Title)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != store.RoleUser || sess.Messages[1].Role != store.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", sess.Messages[0].Role, sess.Messages[1].Role)
	}
}

// TestHandleChat_ExistingSession verifies that supplying a session_id reuses
// the session instead of creating a new one.
func TestHandleChat_ExistingSession(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{answer: "ok"}
	s := newTestServer(t, q)

	ctx := context.Background()
	id, err := s.sessions.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(fmt.Sprintf(`{"message":"follow up","session_id":"%d"}`, id)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if q.lastSession != fmt.Sprintf("%d", id) {
		t.Errorf("querier session: expected %q, got %q", fmt.Sprintf("%d", id), q.lastSession)
	}
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}

// TestHandleChat_BotError verifies that when the querier returns an error,
// the SSE stream includes an "error" event and the response is still 200
// (SSE errors are delivered in-band, not via HTTP status), and nothing is
// persisted to the transcript.
func TestHandleChat_BotError(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{err: fmt.Errorf("LLM unavailable")}
	s := newTestServer(t, q)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"screen this"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("expected error event in body, got: %s", body)
	}
	if !strings.Contains(body, "LLM unavailable") {
		t.Errorf("expected error message in body, got: %s", body)
	}

	sess, err := s.sessions.GetSession(req.Context(), 1)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 0 {
		t.Errorf("expected no persisted messages after error, got %d", len(sess.Messages))
	}
}

// TestHandleChat_UnavailableNotPersisted verifies that a degraded-backend turn
// is not written to the transcript.
func TestHandleChat_UnavailableNotPersisted(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{answer: chatbot.UnavailableAnswer, status: chatbot.StatusUnavailable}
	s := newTestServer(t, q)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"screen this"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: status\ndata: unavailable\n") {
		t.Errorf("expected unavailable status event, got: %s", body)
	}

	sess, err := s.sessions.GetSession(req.Context(), 1)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 0 {
		t.Errorf("expected no persisted messages for unavailable turn, got %d", len(sess.Messages))
	}
}
