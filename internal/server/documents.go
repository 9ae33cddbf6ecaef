package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/recruitops/screener-go/internal/ingestion"
	"github.com/recruitops/screener-go/internal/logging"
)

// maxUploadBytes caps the size of an uploaded job description PDF.
const maxUploadBytes = 20 << 20 // 20 MiB

// handleDocumentAdd handles POST /api/documents. The PDF is uploaded as a
// multipart form field named "file"; its filename becomes the document ID.
// Re-uploading an existing ID returns 409 Conflict — use PUT to replace.
func (s *Server) handleDocumentAdd(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, data, ok := uploadedPDF(w, r)
	if !ok {
		return
	}

	if err := s.catalog.Add(r.Context(), id, data); err != nil {
		switch {
		case errors.Is(err, ingestion.ErrDuplicateDocument):
			s.metrics.documentsIngestedTotal.WithLabelValues("duplicate").Inc()
			http.Error(w, "document already exists", http.StatusConflict)
		case errors.Is(err, ingestion.ErrNoText):
			s.metrics.documentsIngestedTotal.WithLabelValues("error").Inc()
			http.Error(w, "no extractable text in document", http.StatusUnprocessableEntity)
		default:
			s.metrics.documentsIngestedTotal.WithLabelValues("error").Inc()
			log.Error("documents: add failed", slog.String("id", id), slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.metrics.documentsIngestedTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleDocumentUpdate handles PUT /api/documents/{id}. The replacement PDF is
// uploaded the same way as POST; the path ID wins over the upload filename.
func (s *Server) handleDocumentUpdate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id := r.PathValue("id")
	_, data, ok := uploadedPDF(w, r)
	if !ok {
		return
	}

	if err := s.catalog.Update(r.Context(), id, data); err != nil {
		switch {
		case errors.Is(err, ingestion.ErrDocumentNotFound):
			http.Error(w, "document not found", http.StatusNotFound)
		case errors.Is(err, ingestion.ErrNoText):
			http.Error(w, "no extractable text in document", http.StatusUnprocessableEntity)
		default:
			log.Error("documents: update failed", slog.String("id", id), slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleDocumentDelete handles DELETE /api/documents/{id}. Deleting an absent
// document succeeds, so the operation is idempotent.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id := r.PathValue("id")
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		log.Error("documents: delete failed", slog.String("id", id), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDocumentList handles GET /api/documents.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	ids, err := s.catalog.List(r.Context())
	if err != nil {
		log.Error("documents: list failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: ids})
}

// uploadedPDF reads the "file" multipart field and returns its base filename
// and contents. On failure it writes a 400/413 response and returns ok=false.
func uploadedPDF(w http.ResponseWriter, r *http.Request) (id string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field 'file' is required", http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return "", nil, false
		}
		http.Error(w, "could not read upload", http.StatusBadRequest)
		return "", nil, false
	}

	// Strip any client-supplied directory components.
	id = filepath.Base(header.Filename)
	if id == "." || id == "/" || id == "" {
		http.Error(w, "upload filename is required", http.StatusBadRequest)
		return "", nil, false
	}
	return id, data, true
}
