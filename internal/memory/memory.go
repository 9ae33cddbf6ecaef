// Package memory keeps a rolling window of recent conversation turns per chat
// session. The window is what gets replayed into the prompt on the next
// question; durable transcripts live in the session store, not here.
package memory

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

const (
	// DefaultWindowPairs is how many user/assistant turn pairs the window
	// retains per session before evicting the oldest.
	DefaultWindowPairs = 6

	// RehydratePairs is how many trailing turn pairs are reloaded from a
	// stored transcript when the user switches back to an existing session.
	RehydratePairs = 3
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	User      string
	Assistant string
}

// Window is an in-memory, session-keyed rolling conversation buffer. It is
// safe for concurrent use. Sessions that never saved a turn cost nothing.
type Window struct {
	mu    sync.Mutex
	pairs int
	// sessions maps session ID to an ordered message list, oldest first.
	// Length is always even: user message followed by assistant message.
	sessions map[string][]*schema.Message
}

// NewWindow constructs a Window retaining up to pairs turn pairs per session.
// Non-positive values fall back to DefaultWindowPairs.
func NewWindow(pairs int) *Window {
	if pairs <= 0 {
		pairs = DefaultWindowPairs
	}
	return &Window{
		pairs:    pairs,
		sessions: make(map[string][]*schema.Message),
	}
}

// SaveTurn appends a completed exchange to the session's window, evicting the
// oldest pair once the window is full.
func (w *Window) SaveTurn(sessionID, user, assistant string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	msgs := append(w.sessions[sessionID],
		schema.UserMessage(user),
		schema.AssistantMessage(assistant, nil),
	)
	if max := w.pairs * 2; len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	w.sessions[sessionID] = msgs
}

// Load returns a copy of the session's window, oldest turn first. An unknown
// session yields an empty slice.
func (w *Window) Load(sessionID string) []*schema.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	msgs := w.sessions[sessionID]
	out := make([]*schema.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear drops the window for one session. Clearing an unknown session is a
// no-op.
func (w *Window) Clear(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, sessionID)
}

// Rehydrate replaces the session's window with the trailing RehydratePairs
// turns of a stored transcript. Used when the user switches back to an
// existing session so the model regains recent context without replaying the
// whole history.
func (w *Window) Rehydrate(sessionID string, turns []Turn) {
	if len(turns) > RehydratePairs {
		turns = turns[len(turns)-RehydratePairs:]
	}

	msgs := make([]*schema.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs,
			schema.UserMessage(t.User),
			schema.AssistantMessage(t.Assistant, nil),
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[sessionID] = msgs
}
