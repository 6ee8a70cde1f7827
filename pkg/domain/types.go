package domain

import "time"

// Book is one entry of a user's favorite-books list.
// (OwnerID, ID) identify the record; ID is a UUID and unique on its own.
type Book struct {
	ID            string    `json:"bookId"`
	OwnerID       string    `json:"ownerId"`
	CreatedAt     time.Time `json:"createdAt"`
	Name          string    `json:"name"`
	Author        string    `json:"author"`
	ReviewURL     string    `json:"reviewUrl"`
	Done          bool      `json:"done"`
	AttachmentURL *string   `json:"attachmentUrl"`
}

// NewBook holds the caller-supplied fields of a book being created.
type NewBook struct {
	Name      string
	Author    string
	ReviewURL string
}

// BookUpdate replaces the mutable fields of a book.
type BookUpdate struct {
	Name      string
	Author    string
	ReviewURL string
	Done      bool
}

// Apply returns b with the update's fields replaced and everything else kept.
func (u BookUpdate) Apply(b Book) Book {
	b.Name = u.Name
	b.Author = u.Author
	b.ReviewURL = u.ReviewURL
	b.Done = u.Done
	return b
}
