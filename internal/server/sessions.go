package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/memory"
	"github.com/recruitops/screener-go/internal/store"
)

// handleSessionCreate handles POST /api/sessions. It creates an empty session
// so a client can obtain an ID before sending its first chat message.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := s.sessions.CreateSession(r.Context())
	if err != nil {
		log.Error("sessions: create failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		log.Error("sessions: load created session failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
	})
}

// handleSessionList handles GET /api/sessions. It returns all sessions newest
// first, without transcripts.
func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	sessions, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		log.Error("sessions: list failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionResponse{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessionGet handles GET /api/sessions/{id}. It returns the full
// transcript and rehydrates the conversation window from the tail of the
// transcript so a follow-up chat request picks up where the session left off.
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error("sessions: get failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.mem.Rehydrate(strconv.FormatInt(id, 10), transcriptTurns(sess.Messages))

	resp := sessionResponse{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
	}
	for _, m := range sess.Messages {
		resp.Messages = append(resp.Messages, messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessionDelete handles DELETE /api/sessions/{id}. It removes the
// session, its transcript, and its in-memory conversation window.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error("sessions: delete failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.mem.Clear(strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusNoContent)
}

// sessionID parses the {id} path value. On failure it writes a 400 response
// and returns ok=false.
func sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// transcriptTurns pairs a persisted transcript into user/assistant turns for
// memory rehydration. A trailing unpaired user message is dropped.
func transcriptTurns(msgs []store.Message) []memory.Turn {
	var turns []memory.Turn
	for i := 0; i+1 < len(msgs); i += 2 {
		if msgs[i].Role != store.RoleUser || msgs[i+1].Role != store.RoleAssistant {
			continue
		}
		turns = append(turns, memory.Turn{
			User:      msgs[i].Content,
			Assistant: msgs[i+1].Content,
		})
	}
	return turns
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
