package store

import (
	"context"
	"errors"

	"favbooks/pkg/domain"
)

var (
	// ErrNotFound is returned by conditional mutations when no record with the
	// given owner and id exists.
	ErrNotFound = errors.New("book record not found")
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("storage error")
)

// BookStore persists book records. Implementations hold no business rules;
// ownership decisions belong to the caller. Mutations are conditional on a
// row matching both ownerID and bookID and report ErrNotFound otherwise.
type BookStore interface {
	// GetAll returns every record of ownerID via the owner lookup.
	GetAll(ctx context.Context, ownerID string) ([]domain.Book, error)
	// GetOne looks a record up by its id alone.
	GetOne(ctx context.Context, bookID string) (domain.Book, bool, error)
	Put(ctx context.Context, book domain.Book) error
	Delete(ctx context.Context, ownerID, bookID string) error
	UpdateFields(ctx context.Context, ownerID, bookID string, update domain.BookUpdate) error
	SetAttachmentURL(ctx context.Context, ownerID, bookID, url string) error
}
