package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"favbooks/internal/util"
	"favbooks/services/books/internal/app"
)

const (
	codeInvalidToken     = "AUTH_INVALID_TOKEN"
	codeBookNotFound     = "BOOK_NOT_FOUND"
	codeBookForbidden    = "BOOK_FORBIDDEN"
	codeInvalidRequest   = "BOOK_INVALID_REQUEST"
	codeRateLimited      = "RATE_LIMITED"
	codeInternal         = "SYSTEM_INTERNAL_ERROR"
	codeMethodNotAllowed = "SYSTEM_METHOD_NOT_ALLOWED"
	codeNotFound         = "SYSTEM_NOT_FOUND"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

// writeAppError maps app errors onto responses. Unknown errors are logged
// and reported as 500 without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeBookNotFound, "book not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeBookForbidden, "forbidden")
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
