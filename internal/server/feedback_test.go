package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleFeedbackSave(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	seedSession(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"session_id":1,"message_index":1,"rating":5,"question":"Is this candidate a fit?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleFeedbackSave(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d — body: %s", w.Code, w.Body.String())
	}

	items, err := s.feedback.ListFeedback(req.Context(), "")
	if err != nil {
		t.Fatalf("list feedback: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 feedback row, got %d", len(items))
	}
	if items[0].Rating != 5 || items[0].Question != "Is this candidate a fit?" {
		t.Errorf("unexpected feedback: %+v", items[0])
	}
}

func TestHandleFeedbackSave_UnknownSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"session_id":42,"message_index":0,"rating":4}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleFeedbackSave(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", w.Code)
	}
}

func TestHandleFeedbackSave_InvalidRating(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	seedSession(t, s)

	for _, body := range []string{
		`{"session_id":1,"message_index":1,"rating":0}`,
		`{"session_id":1,"message_index":1,"rating":6}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		s.handleFeedbackSave(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandleFeedbackSave_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader("nope"))
	w := httptest.NewRecorder()

	s.handleFeedbackSave(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleFeedbackList_DayFilter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	seedSession(t, s)

	saves := []string{
		`{"session_id":1,"message_index":0,"rating":3}`,
		`{"session_id":1,"message_index":1,"rating":4}`,
	}
	for _, body := range saves {
		req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
		w := httptest.NewRecorder()
		s.handleFeedbackSave(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("seed save: expected 204, got %d", w.Code)
		}
	}

	// No filter returns everything.
	req := httptest.NewRequest(http.MethodGet, "/api/feedback", nil)
	w := httptest.NewRecorder()
	s.handleFeedbackList(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var all []feedbackResponse
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows without filter, got %d", len(all))
	}

	// A day with no ratings returns an empty list, not an error.
	req = httptest.NewRequest(http.MethodGet, "/api/feedback?day=1999-01-01", nil)
	w = httptest.NewRecorder()
	s.handleFeedbackList(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var none []feedbackResponse
	if err := json.NewDecoder(w.Body).Decode(&none); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected 0 rows for empty day, got %d", len(none))
	}
}
