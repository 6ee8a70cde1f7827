package store

import "time"

// BookModel is the GORM row for a book record. Owner lookups go through
// idx_book_models_owner.
type BookModel struct {
	BookID        string    `gorm:"primaryKey"`
	OwnerID       string    `gorm:"not null;index:idx_book_models_owner"`
	CreatedAt     time.Time `gorm:"not null"`
	Name          string    `gorm:"not null"`
	Author        string    `gorm:"not null"`
	ReviewURL     string    `gorm:"not null"`
	Done          bool      `gorm:"not null;default:false"`
	AttachmentURL *string
}
