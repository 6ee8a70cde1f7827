package app

import "errors"

var (
	// ErrNotFound means no book exists with the requested id.
	ErrNotFound = errors.New("book not found")
	// ErrForbidden means the book exists but belongs to another owner.
	ErrForbidden = errors.New("book belongs to another user")
	// ErrInvalidInput means a command failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
