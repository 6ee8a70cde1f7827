package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.List(r.Context(), ownerID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.app.Get(r.Context(), ownerID(r), chi.URLParam(r, "bookId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	book, err := s.app.Create(r.Context(), ownerID(r), req.command())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var req updateBookRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if err := s.app.Update(r.Context(), ownerID(r), chi.URLParam(r, "bookId"), req.command()); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Delete(r.Context(), ownerID(r), chi.URLParam(r, "bookId")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateAttachment issues the upload URL before linking the attachment,
// so a 404/403 from the link step still leaves an unused URL behind.
func (s *Server) handleCreateAttachment(w http.ResponseWriter, r *http.Request) {
	attachmentID := s.app.NewAttachmentID()
	uploadURL, err := s.app.IssueUploadURL(r.Context(), attachmentID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if _, err := s.app.AssignAttachment(r.Context(), ownerID(r), chi.URLParam(r, "bookId"), attachmentID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": uploadURL})
}
