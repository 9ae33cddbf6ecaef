package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/recruitops/screener-go/internal/chatbot"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/store"
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
	// ChatTimeout bounds a single /api/chat stream end to end.
	// Defaults to 5 minutes if zero.
	ChatTimeout time.Duration
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
	// MetricsRegistry receives all Prometheus metric registrations.
	// Defaults to prometheus.DefaultRegisterer if nil.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// Defaults to prometheus.DefaultGatherer if nil.
	MetricsGatherer prometheus.Gatherer
}

// querier is the interface handleChat calls to stream an answer.
// *chatbot.Chatbot satisfies it; tests inject a fake.
type querier interface {
	// Query streams the answer for userMessage within sessionID to w.
	Query(ctx context.Context, sessionID, userMessage string, w io.Writer) (*chatbot.Result, error)
}

// cataloger is the interface the document handlers call to manage the job
// description corpus. *ingestion.Catalog satisfies it; tests inject a fake.
type cataloger interface {
	Add(ctx context.Context, id string, data []byte) error
	Update(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Server is the HTTP server that exposes the screening assistant.
type Server struct {
	// bot answers chat queries; set to the chatbot in production, overridden
	// by a fake in tests.
	bot querier
	// catalog manages the job description corpus.
	catalog cataloger
	// sessions persists chat session transcripts.
	sessions store.SessionStore
	// feedback persists answer ratings.
	feedback store.FeedbackStore
	// mem is the per-session conversation window, cleared on session delete
	// and rehydrated on session switch.
	mem *memory.Window
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds all Prometheus metrics owned by this server.
	metrics *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's question, optionally carrying pasted resumes.
	Message string `json:"message"`
	// SessionID targets an existing session. Empty means "create a new one".
	SessionID string `json:"session_id,omitempty"`
}

// sessionResponse is the JSON shape of one session in list/get responses.
type sessionResponse struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []messageResponse `json:"messages,omitempty"`
}

// messageResponse is the JSON shape of one transcript message.
type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// feedbackRequest is the JSON body for POST /api/feedback.
type feedbackRequest struct {
	SessionID    int64  `json:"session_id"`
	MessageIndex int    `json:"message_index"`
	Question     string `json:"question,omitempty"`
	Rating       int    `json:"rating"`
}

// feedbackResponse is the JSON shape of one rating in GET /api/feedback.
type feedbackResponse struct {
	SessionID    int64     `json:"session_id"`
	MessageIndex int       `json:"message_index"`
	Day          string    `json:"day"`
	Question     string    `json:"question,omitempty"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

// documentsResponse is the JSON response for GET /api/documents.
type documentsResponse struct {
	// Documents lists the IDs (filenames) of all ingested job descriptions.
	Documents []string `json:"documents"`
}
