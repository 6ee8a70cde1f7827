package store

import (
	"context"
	"sync"

	"favbooks/pkg/domain"
)

// MemoryStore keeps book records in-process. It backs local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[string]domain.Book
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[string]domain.Book)}
}

// GetAll returns the owner's books in no particular order.
func (m *MemoryStore) GetAll(_ context.Context, ownerID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0)
	for _, b := range m.books {
		if b.OwnerID == ownerID {
			res = append(res, cloneBook(b))
		}
	}
	return res, nil
}

// GetOne retrieves a book by ID.
func (m *MemoryStore) GetOne(_ context.Context, bookID string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[bookID]
	if !ok {
		return domain.Book{}, false, nil
	}
	return cloneBook(b), true, nil
}

// Put stores or replaces a book.
func (m *MemoryStore) Put(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = cloneBook(b)
	return nil
}

// Delete removes the owner's book.
func (m *MemoryStore) Delete(_ context.Context, ownerID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(ownerID, bookID); err != nil {
		return err
	}
	delete(m.books, bookID)
	return nil
}

// UpdateFields replaces name, author, reviewUrl and done.
func (m *MemoryStore) UpdateFields(_ context.Context, ownerID, bookID string, update domain.BookUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.owned(ownerID, bookID)
	if err != nil {
		return err
	}
	m.books[bookID] = update.Apply(b)
	return nil
}

// SetAttachmentURL records the attachment URL on the owner's book.
func (m *MemoryStore) SetAttachmentURL(_ context.Context, ownerID, bookID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.owned(ownerID, bookID)
	if err != nil {
		return err
	}
	b.AttachmentURL = &url
	m.books[bookID] = b
	return nil
}

// owned must be called with mu held.
func (m *MemoryStore) owned(ownerID, bookID string) (domain.Book, error) {
	b, ok := m.books[bookID]
	if !ok || b.OwnerID != ownerID {
		return domain.Book{}, ErrNotFound
	}
	return b, nil
}

func cloneBook(b domain.Book) domain.Book {
	if b.AttachmentURL != nil {
		url := *b.AttachmentURL
		b.AttachmentURL = &url
	}
	return b
}
