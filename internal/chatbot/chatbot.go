// Package chatbot wires the retriever, conversation memory, and the LLM into
// the resume screening assistant. Each query runs retrieve → format context →
// prompt with history → stream answer, committing the completed turn to the
// session's memory window only when the stream finishes cleanly.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/recruitops/screener-go/internal/budget"
	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/rag"
)

// systemPromptTemplate establishes the assistant persona and the rules for
// answering from retrieved job description context. The retrieved context is
// appended below it on every query.
const systemPromptTemplate = `You are a recruitment assistant that screens candidate resumes against job descriptions.

Rules:
- Evaluate candidates ONLY against the job descriptions provided in the context below. Do not invent requirements that are not in the context.
- When resumes are provided, assess each candidate's fit against the job description: call out matching skills, missing requirements, and give a clear recommendation.
- If the context below says "No relevant job descriptions found for this query.", reply exactly: "This job description is not available."
- If the question is unrelated to resume screening or job descriptions, reply that you can only help with resume screening against the available job descriptions.
- Be concise and specific. Quote the job description requirement you are judging against.

Context:
%s`

// NoJobDescriptionAnswer is what the model is instructed to reply when no
// relevant job description exists for the query.
const NoJobDescriptionAnswer = "This job description is not available."

// UnavailableAnswer is the single chunk emitted when the assistant is running
// without a chat model (degraded mode).
const UnavailableAnswer = "The screening assistant is temporarily unavailable. Please try again later."

// resumeMarker separates the job description query from the pasted resumes in
// a combined screening request. Only the text before the marker is used for
// retrieval — resumes themselves should not steer the vector search.
const resumeMarker = "Screen the following resumes:"

// Status classifies the outcome of one query.
type Status string

const (
	// StatusOK means the answer was grounded in retrieved job descriptions.
	StatusOK Status = "ok"
	// StatusNoContext means retrieval found nothing relevant; the model was
	// told so and the turn still completed.
	StatusNoContext Status = "no_context"
	// StatusUnavailable means the assistant has no chat model and emitted the
	// fixed unavailable answer. The turn is not committed to memory.
	StatusUnavailable Status = "unavailable"
	// StatusFailed means the stream broke mid-answer. The partial output is
	// not committed to memory.
	StatusFailed Status = "failed"
)

// Result describes one completed (or failed) query.
type Result struct {
	// Status classifies the outcome.
	Status Status
	// Answer is the full accumulated answer text (possibly partial on failure).
	Answer string
	// Sources lists the IDs of the job descriptions injected as context.
	Sources []string
}

// Config holds the dependencies required to construct a Chatbot.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	// May be nil — the chatbot then runs degraded and every query returns
	// the fixed unavailable answer.
	ChatModel model.BaseChatModel

	// Retriever supplies job description context. May be nil if the vector
	// store is not configured; queries then run without context.
	Retriever rag.Retriever

	// Memory is the per-session conversation window.
	Memory *memory.Window

	// TopK controls how many job descriptions are injected per query.
	// Defaults to rag.DefaultTopK if zero.
	TopK int

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Chatbot is the resume screening orchestrator.
type Chatbot struct {
	chatModel        model.BaseChatModel
	retriever        rag.Retriever
	mem              *memory.Window
	topK             int
	maxContextTokens int
}

// New constructs a Chatbot from the provided Config.
func New(cfg *Config) (*Chatbot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("chatbot: config must not be nil")
	}
	if cfg.Memory == nil {
		return nil, fmt.Errorf("chatbot: memory window must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Chatbot{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		mem:              cfg.Memory,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Degraded reports whether the chatbot is running without a chat model.
func (c *Chatbot) Degraded() bool {
	return c.chatModel == nil
}

// Query answers a user message within a session, streaming chunks to w as
// they arrive from the model. The completed turn is saved to the session's
// memory window only on a clean finish; unavailable and failed turns leave
// memory untouched.
func (c *Chatbot) Query(ctx context.Context, sessionID, userMessage string, w io.Writer) (*Result, error) {
	log := logging.FromContext(ctx)

	if c.Degraded() {
		if _, err := fmt.Fprint(w, UnavailableAnswer); err != nil {
			return &Result{Status: StatusFailed}, fmt.Errorf("chatbot: write error: %w", err)
		}
		return &Result{Status: StatusUnavailable, Answer: UnavailableAnswer}, nil
	}

	docs := c.retrieve(ctx, userMessage)
	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, d.ID)
	}

	status := StatusOK
	if len(docs) == 0 {
		status = StatusNoContext
	}

	messages := c.buildMessages(ctx, sessionID, userMessage, docs)

	sr, err := c.chatModel.Stream(ctx, messages)
	if err != nil {
		return &Result{Status: StatusFailed, Sources: sources}, fmt.Errorf("chatbot: stream failed: %w", err)
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &Result{Status: StatusFailed, Answer: answer.String(), Sources: sources},
				fmt.Errorf("chatbot: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		answer.WriteString(msg.Content)
		if _, err := fmt.Fprint(w, msg.Content); err != nil {
			return &Result{Status: StatusFailed, Answer: answer.String(), Sources: sources},
				fmt.Errorf("chatbot: write error: %w", err)
		}
	}

	c.mem.SaveTurn(sessionID, userMessage, answer.String())

	log.Info("query answered",
		slog.String("session", sessionID),
		slog.String("status", string(status)),
		slog.Int("sources", len(sources)),
		slog.Int("answer_chars", answer.Len()),
	)
	return &Result{Status: status, Answer: answer.String(), Sources: sources}, nil
}

// retrieve fetches job description context for the message. Retrieval
// failures are non-fatal — the query continues without context.
func (c *Chatbot) retrieve(ctx context.Context, userMessage string) []rag.Document {
	if c.retriever == nil {
		return nil
	}
	docs, err := c.retriever.Retrieve(ctx, extractJobQuery(userMessage), c.topK)
	if err != nil {
		logging.FromContext(ctx).Warn("retrieval failed, continuing without context", slog.Any("error", err))
		return nil
	}
	return docs
}

// buildMessages assembles [system+context, ...history, user], trimming
// history oldest-first to fit the token budget.
func (c *Chatbot) buildMessages(ctx context.Context, sessionID, userMessage string, docs []rag.Document) []*schema.Message {
	system := schema.SystemMessage(fmt.Sprintf(systemPromptTemplate, rag.FormatContext(docs)))
	user := schema.UserMessage(userMessage)

	history := c.mem.Load(sessionID)
	fixed := []*schema.Message{system, user}

	before := len(history)
	history = budget.TrimHistory(fixed, history, c.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", c.maxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(history)+2)
	out = append(out, system)
	out = append(out, history...)
	out = append(out, user)
	return out
}

// extractJobQuery returns the retrieval query for a screening request: the
// text before the resume marker. Pasted resumes are bulky and would drown out
// the job description terms in the vector search.
func extractJobQuery(userMessage string) string {
	if idx := strings.Index(userMessage, resumeMarker); idx >= 0 {
		return strings.TrimSpace(userMessage[:idx])
	}
	return userMessage
}
