package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"favbooks/pkg/domain"
)

const maxBodyBytes = 1 << 20

type createBookRequest struct {
	Name      string `json:"name" validate:"required,max=512"`
	Author    string `json:"author" validate:"required,max=512"`
	ReviewURL string `json:"reviewUrl" validate:"omitempty,url,max=2048"`
}

func (req createBookRequest) command() domain.NewBook {
	return domain.NewBook{
		Name:      strings.TrimSpace(req.Name),
		Author:    strings.TrimSpace(req.Author),
		ReviewURL: strings.TrimSpace(req.ReviewURL),
	}
}

type updateBookRequest struct {
	Name      string `json:"name" validate:"required,max=512"`
	Author    string `json:"author" validate:"required,max=512"`
	ReviewURL string `json:"reviewUrl" validate:"omitempty,url,max=2048"`
	Done      *bool  `json:"done" validate:"required"`
}

func (req updateBookRequest) command() domain.BookUpdate {
	return domain.BookUpdate{
		Name:      strings.TrimSpace(req.Name),
		Author:    strings.TrimSpace(req.Author),
		ReviewURL: strings.TrimSpace(req.ReviewURL),
		Done:      *req.Done,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names, not Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeCommand strictly decodes the body into dst and validates it. It
// writes a 400 and returns false on any violation.
func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
