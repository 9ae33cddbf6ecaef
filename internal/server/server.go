// Package server implements the HTTP server that exposes the resume screening
// assistant via a REST/SSE API: streaming chat, session management, job
// description ingestion, and answer feedback.
// The server is started by the `screener serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recruitops/screener-go/internal/chatbot"
	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/store"
)

// defaultChatTimeout bounds a single chat stream when no explicit timeout is
// configured. Long enough for slow models, short enough to reclaim hung streams.
const defaultChatTimeout = 5 * time.Minute

// New constructs a Server from the provided collaborators and config.
// bot and mem must not be nil; catalog, sessions, and feedback may be nil only
// in tests that never exercise their routes.
func New(bot querier, catalog cataloger, sessions store.SessionStore, feedback store.FeedbackStore, mem *memory.Window, cfg *Config) (*Server, error) {
	if bot == nil {
		return nil, fmt.Errorf("server: chatbot must not be nil")
	}
	if mem == nil {
		return nil, fmt.Errorf("server: memory window must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		bot:      bot,
		catalog:  catalog,
		sessions: sessions,
		feedback: feedback,
		mem:      mem,
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		pingers:  cfg.Pingers,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: API key not set — authentication disabled")
	}
	protect := func(h http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protect(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /api/sessions", protect(http.HandlerFunc(s.handleSessionCreate)))
	mux.Handle("GET /api/sessions", protect(http.HandlerFunc(s.handleSessionList)))
	mux.Handle("GET /api/sessions/{id}", protect(http.HandlerFunc(s.handleSessionGet)))
	mux.Handle("DELETE /api/sessions/{id}", protect(http.HandlerFunc(s.handleSessionDelete)))
	mux.Handle("POST /api/feedback", protect(http.HandlerFunc(s.handleFeedbackSave)))
	mux.Handle("GET /api/feedback", protect(http.HandlerFunc(s.handleFeedbackList)))
	mux.Handle("POST /api/documents", protect(http.HandlerFunc(s.handleDocumentAdd)))
	mux.Handle("PUT /api/documents/{id}", protect(http.HandlerFunc(s.handleDocumentUpdate)))
	mux.Handle("DELETE /api/documents/{id}", protect(http.HandlerFunc(s.handleDocumentDelete)))
	mux.Handle("GET /api/documents", protect(http.HandlerFunc(s.handleDocumentList)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, s.httpMetrics(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat requests. It streams the assistant's
// answer using Server-Sent Events (SSE) so the client can render tokens as
// they arrive. If the request carries no session_id a new session is created
// and announced to the client via an "event: session" frame before the first
// token.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessID, err := s.resolveSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error("chat: session resolution failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Announce the session before any tokens so the client can thread
	// follow-up requests even if the stream later fails.
	fmt.Fprintf(w, "event: session\ndata: %d\n\n", sessID)
	flusher.Flush()

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	// sseWriter wraps the ResponseWriter to emit SSE-formatted data events.
	sw := &sseWriter{w: w, flusher: flusher}

	result, err := s.bot.Query(ctx, strconv.FormatInt(sessID, 10), req.Message, sw)
	if err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.chatDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	outcome := string(result.Status)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	s.persistTurn(r.Context(), sessID, req.Message, result)

	fmt.Fprintf(w, "event: status\ndata: %s\n\n", result.Status)
	if len(result.Sources) > 0 {
		if data, err := json.Marshal(result.Sources); err == nil {
			fmt.Fprintf(w, "event: sources\ndata: %s\n\n", data)
		}
	}
	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// resolveSession returns the target session ID for a chat request, creating a
// new session (titled from the first message) when no session_id was supplied.
func (s *Server) resolveSession(ctx context.Context, req chatRequest) (int64, error) {
	if req.SessionID == "" {
		id, err := s.sessions.CreateSession(ctx)
		if err != nil {
			return 0, fmt.Errorf("create session: %w", err)
		}
		if err := s.sessions.SetTitle(ctx, id, store.SessionTitle(req.Message)); err != nil {
			return 0, fmt.Errorf("set title: %w", err)
		}
		return id, nil
	}

	id, err := strconv.ParseInt(req.SessionID, 10, 64)
	if err != nil {
		return 0, store.ErrSessionNotFound
	}
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	// Sessions created empty via POST /api/sessions get their title from
	// the first message sent to them.
	if sess.Title == "" {
		if err := s.sessions.SetTitle(ctx, id, store.SessionTitle(req.Message)); err != nil {
			return 0, fmt.Errorf("set title: %w", err)
		}
	}
	return id, nil
}

// persistTurn appends the user message and the assistant's answer to the
// session transcript. Turns that never produced an answer (degraded backend,
// mid-stream failure) are not persisted, mirroring the conversation memory's
// commit discipline.
func (s *Server) persistTurn(ctx context.Context, sessID int64, userMsg string, result *chatbot.Result) {
	if result.Status != chatbot.StatusOK && result.Status != chatbot.StatusNoContext {
		return
	}

	log := s.log.With(slog.Int64("session", sessID))
	if err := s.sessions.AppendMessage(ctx, sessID, store.RoleUser, userMsg); err != nil {
		log.Error("chat: persist user message failed", slog.Any("error", err))
		return
	}
	if err := s.sessions.AppendMessage(ctx, sessID, store.RoleAssistant, result.Answer); err != nil {
		log.Error("chat: persist assistant message failed", slog.Any("error", err))
	}
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p becomes a data-line boundary within the event, so the
// client reconstructs the chunk exactly: trailing newlines are carried as
// empty data lines rather than silently dropped.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
