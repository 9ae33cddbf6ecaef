package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/store"
)

// handleFeedbackSave handles POST /api/feedback. Ratings are keyed by
// (session, message, day): rating the same answer twice on the same day
// overwrites the earlier rating rather than accumulating duplicates.
func (s *Server) handleFeedbackSave(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fb := store.Feedback{
		SessionID:    req.SessionID,
		MessageIndex: req.MessageIndex,
		Question:     req.Question,
		Rating:       req.Rating,
	}
	if err := s.feedback.SaveFeedback(r.Context(), fb); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrInvalidRating) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("feedback: save failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.metrics.feedbackTotal.WithLabelValues(strconv.Itoa(req.Rating)).Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleFeedbackList handles GET /api/feedback. An optional ?day=2006-01-02
// query parameter restricts results to a single day partition.
func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	day := r.URL.Query().Get("day")
	items, err := s.feedback.ListFeedback(r.Context(), day)
	if err != nil {
		log.Error("feedback: list failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]feedbackResponse, 0, len(items))
	for _, fb := range items {
		resp = append(resp, feedbackResponse{
			SessionID:    fb.SessionID,
			MessageIndex: fb.MessageIndex,
			Day:          fb.Day,
			Question:     fb.Question,
			Rating:       fb.Rating,
			CreatedAt:    fb.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
