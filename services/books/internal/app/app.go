package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"favbooks/internal/util"
	"favbooks/pkg/domain"
	"favbooks/pkg/store"
)

// AttachmentURLs hands out upload and retrieval URLs for attachments.
type AttachmentURLs interface {
	UploadURL(ctx context.Context, attachmentID string) (string, error)
	RetrievalURL(ctx context.Context, attachmentID string) (string, error)
}

// Config holds runtime dependencies for the core application.
type Config struct {
	Store       store.BookStore
	Attachments AttachmentURLs
	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// App owns every book rule: ownership checks and the record lifecycle.
type App struct {
	store       store.BookStore
	attachments AttachmentURLs
	now         func() time.Time
	newID       func() string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("book store required")
	}
	if cfg.Attachments == nil {
		return nil, errors.New("attachment store required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &App{
		store:       cfg.Store,
		attachments: cfg.Attachments,
		now:         now,
		newID:       newID,
	}, nil
}

// List returns every book of the owner. The result is never nil.
func (a *App) List(ctx context.Context, ownerID string) ([]domain.Book, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	books, err := a.store.GetAll(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// Get returns one of the owner's books.
func (a *App) Get(ctx context.Context, ownerID, bookID string) (domain.Book, error) {
	return a.owned(ctx, ownerID, bookID)
}

// Create stores a new book for the owner. CreatedAt is kept at microsecond
// precision so it reads back unchanged from every store.
func (a *App) Create(ctx context.Context, ownerID string, nb domain.NewBook) (domain.Book, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Book{}, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	if strings.TrimSpace(nb.Name) == "" || strings.TrimSpace(nb.Author) == "" {
		return domain.Book{}, fmt.Errorf("%w: name and author required", ErrInvalidInput)
	}
	book := domain.Book{
		ID:        a.newID(),
		OwnerID:   ownerID,
		CreatedAt: a.now().UTC().Truncate(time.Microsecond),
		Name:      nb.Name,
		Author:    nb.Author,
		ReviewURL: nb.ReviewURL,
		Done:      false,
	}
	if err := a.store.Put(ctx, book); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	util.LoggerFromContext(ctx).Info("book created", "book_id", book.ID)
	return book, nil
}

// Update replaces name, author, reviewUrl and done on the owner's book.
func (a *App) Update(ctx context.Context, ownerID, bookID string, upd domain.BookUpdate) error {
	if strings.TrimSpace(upd.Name) == "" || strings.TrimSpace(upd.Author) == "" {
		return fmt.Errorf("%w: name and author required", ErrInvalidInput)
	}
	if _, err := a.owned(ctx, ownerID, bookID); err != nil {
		return err
	}
	if err := a.store.UpdateFields(ctx, ownerID, bookID, upd); err != nil {
		return storeErr("update book", err)
	}
	util.LoggerFromContext(ctx).Info("book updated", "book_id", bookID, "done", upd.Done)
	return nil
}

// Delete removes the owner's book.
func (a *App) Delete(ctx context.Context, ownerID, bookID string) error {
	if _, err := a.owned(ctx, ownerID, bookID); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, ownerID, bookID); err != nil {
		return storeErr("delete book", err)
	}
	util.LoggerFromContext(ctx).Info("book deleted", "book_id", bookID)
	return nil
}

// AssignAttachment links an attachment to the owner's book and returns the
// URL recorded on it.
func (a *App) AssignAttachment(ctx context.Context, ownerID, bookID, attachmentID string) (string, error) {
	if strings.TrimSpace(attachmentID) == "" {
		return "", fmt.Errorf("%w: attachment id required", ErrInvalidInput)
	}
	url, err := a.attachments.RetrievalURL(ctx, attachmentID)
	if err != nil {
		return "", fmt.Errorf("build attachment url: %w", err)
	}
	if _, err := a.owned(ctx, ownerID, bookID); err != nil {
		return "", err
	}
	if err := a.store.SetAttachmentURL(ctx, ownerID, bookID, url); err != nil {
		return "", storeErr("assign attachment", err)
	}
	util.LoggerFromContext(ctx).Info("attachment assigned", "book_id", bookID, "attachment_id", attachmentID)
	return url, nil
}

// IssueUploadURL returns a write URL for the attachment. It checks no
// ownership; callers link the attachment with AssignAttachment.
func (a *App) IssueUploadURL(ctx context.Context, attachmentID string) (string, error) {
	if strings.TrimSpace(attachmentID) == "" {
		return "", fmt.Errorf("%w: attachment id required", ErrInvalidInput)
	}
	url, err := a.attachments.UploadURL(ctx, attachmentID)
	if err != nil {
		return "", fmt.Errorf("issue upload url: %w", err)
	}
	return url, nil
}

// NewAttachmentID returns a fresh attachment id.
func (a *App) NewAttachmentID() string {
	return a.newID()
}

// owned fetches the book and checks that ownerID owns it.
func (a *App) owned(ctx context.Context, ownerID, bookID string) (domain.Book, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Book{}, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	book, ok, err := a.store.GetOne(ctx, bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if book.OwnerID != ownerID {
		util.LoggerFromContext(ctx).Warn("book owned by another user", "book_id", bookID)
		return domain.Book{}, ErrForbidden
	}
	return book, nil
}

// storeErr maps a conditional-write miss, which means the book vanished or
// changed owner after the check, onto ErrNotFound.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
