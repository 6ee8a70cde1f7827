package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"favbooks/pkg/domain"
)

const migrateLockID int64 = 40211987

// GormStore implements BookStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock,
// so several instances can start at once.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %w", ErrStorage, err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAll returns the owner's books ordered by created_at.
func (s *GormStore) GetAll(ctx context.Context, ownerID string) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list books: %w", ErrStorage, err)
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetOne retrieves a book by ID.
func (s *GormStore) GetOne(ctx context.Context, bookID string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "book_id = ?", bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, fmt.Errorf("%w: get book: %w", ErrStorage, err)
	}
	return bookFromModel(model), true, nil
}

// Put inserts a book, or replaces its mutable columns if the id exists.
// owner_id and created_at are never rewritten.
func (s *GormStore) Put(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "author", "review_url", "done", "attachment_url"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: put book: %w", ErrStorage, err)
	}
	return nil
}

// Delete removes the owner's book.
func (s *GormStore) Delete(ctx context.Context, ownerID, bookID string) error {
	res := s.db.WithContext(ctx).
		Where("book_id = ? AND owner_id = ?", bookID, ownerID).
		Delete(&BookModel{})
	return checkAffected(res, "delete book")
}

// UpdateFields replaces name, author, reviewUrl and done.
func (s *GormStore) UpdateFields(ctx context.Context, ownerID, bookID string, update domain.BookUpdate) error {
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("book_id = ? AND owner_id = ?", bookID, ownerID).
		Updates(map[string]any{
			"name":       update.Name,
			"author":     update.Author,
			"review_url": update.ReviewURL,
			"done":       update.Done,
		})
	return checkAffected(res, "update book")
}

// SetAttachmentURL records the attachment URL on the owner's book.
func (s *GormStore) SetAttachmentURL(ctx context.Context, ownerID, bookID, url string) error {
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("book_id = ? AND owner_id = ?", bookID, ownerID).
		Update("attachment_url", url)
	return checkAffected(res, "set attachment url")
}

func checkAffected(res *gorm.DB, op string) error {
	if res.Error != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		BookID:        b.ID,
		OwnerID:       b.OwnerID,
		CreatedAt:     b.CreatedAt,
		Name:          b.Name,
		Author:        b.Author,
		ReviewURL:     b.ReviewURL,
		Done:          b.Done,
		AttachmentURL: b.AttachmentURL,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:            m.BookID,
		OwnerID:       m.OwnerID,
		CreatedAt:     m.CreatedAt.UTC(),
		Name:          m.Name,
		Author:        m.Author,
		ReviewURL:     m.ReviewURL,
		Done:          m.Done,
		AttachmentURL: m.AttachmentURL,
	}
}
