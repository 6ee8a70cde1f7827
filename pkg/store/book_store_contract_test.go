package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"favbooks/pkg/domain"
)

// runBookStoreSuite checks the behavior every BookStore backend shares.
func runBookStoreSuite(t *testing.T, newStore func(t *testing.T) BookStore) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	book := func(owner, id string, offset time.Duration) domain.Book {
		return domain.Book{
			ID:        id,
			OwnerID:   owner,
			CreatedAt: created.Add(offset),
			Name:      "Dune",
			Author:    "Herbert",
			ReviewURL: "https://example.com/dune",
		}
	}

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		want := book("u1", "b-get", 0)
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, ok, err := s.GetOne(ctx, "b-get")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if got.OwnerID != "u1" || got.Name != "Dune" || got.Done || got.AttachmentURL != nil {
			t.Fatalf("unexpected book: %+v", got)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("createdAt = %v, want %v", got.CreatedAt, want.CreatedAt)
		}
		if _, ok, err := s.GetOne(ctx, "missing"); err != nil || ok {
			t.Fatalf("expected miss, ok=%v err=%v", ok, err)
		}
	})

	t.Run("get all filters by owner", func(t *testing.T) {
		s := newStore(t)
		for _, b := range []domain.Book{
			book("u1", "b-1", 0),
			book("u1", "b-2", time.Minute),
			book("u2", "b-3", 2*time.Minute),
		} {
			if err := s.Put(ctx, b); err != nil {
				t.Fatalf("put %s: %v", b.ID, err)
			}
		}
		got, err := s.GetAll(ctx, "u1")
		if err != nil {
			t.Fatalf("get all: %v", err)
		}
		ids := make([]string, 0, len(got))
		for _, b := range got {
			ids = append(ids, b.ID)
		}
		sort.Strings(ids)
		if len(ids) != 2 || ids[0] != "b-1" || ids[1] != "b-2" {
			t.Fatalf("unexpected ids: %v", ids)
		}
		empty, err := s.GetAll(ctx, "nobody")
		if err != nil {
			t.Fatalf("get all empty: %v", err)
		}
		if empty == nil || len(empty) != 0 {
			t.Fatalf("expected empty non-nil list, got %#v", empty)
		}
	})

	t.Run("update fields", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, book("u1", "b-up", 0)); err != nil {
			t.Fatalf("put: %v", err)
		}
		upd := domain.BookUpdate{Name: "Dune Messiah", Author: "F. Herbert", ReviewURL: "", Done: true}
		if err := s.UpdateFields(ctx, "u1", "b-up", upd); err != nil {
			t.Fatalf("update: %v", err)
		}
		// Applying the same update twice is not an error.
		if err := s.UpdateFields(ctx, "u1", "b-up", upd); err != nil {
			t.Fatalf("repeat update: %v", err)
		}
		got, _, err := s.GetOne(ctx, "b-up")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "Dune Messiah" || got.Author != "F. Herbert" || got.ReviewURL != "" || !got.Done {
			t.Fatalf("update not applied: %+v", got)
		}
		if got.OwnerID != "u1" || !got.CreatedAt.Equal(created) {
			t.Fatalf("identity fields changed: %+v", got)
		}
	})

	t.Run("mutations require owner", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, book("u1", "b-own", 0)); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.UpdateFields(ctx, "u2", "b-own", domain.BookUpdate{Name: "x", Author: "y"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("update by other owner: %v", err)
		}
		if err := s.SetAttachmentURL(ctx, "u2", "b-own", "https://x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attach by other owner: %v", err)
		}
		if err := s.Delete(ctx, "u2", "b-own"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete by other owner: %v", err)
		}
		got, ok, err := s.GetOne(ctx, "b-own")
		if err != nil || !ok {
			t.Fatalf("record vanished: ok=%v err=%v", ok, err)
		}
		if got.Name != "Dune" || got.AttachmentURL != nil {
			t.Fatalf("record changed: %+v", got)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		s := newStore(t)
		if err := s.UpdateFields(ctx, "u1", "nope", domain.BookUpdate{Name: "x", Author: "y"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("update missing: %v", err)
		}
		if err := s.SetAttachmentURL(ctx, "u1", "nope", "https://x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attach missing: %v", err)
		}
		if err := s.Delete(ctx, "u1", "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete missing: %v", err)
		}
	})

	t.Run("attachment and delete", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, book("u1", "b-del", 0)); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.SetAttachmentURL(ctx, "u1", "b-del", "https://bucket/att-1"); err != nil {
			t.Fatalf("set attachment: %v", err)
		}
		got, _, err := s.GetOne(ctx, "b-del")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.AttachmentURL == nil || *got.AttachmentURL != "https://bucket/att-1" {
			t.Fatalf("attachment not recorded: %+v", got.AttachmentURL)
		}
		if err := s.Delete(ctx, "u1", "b-del"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, err := s.GetOne(ctx, "b-del"); err != nil || ok {
			t.Fatalf("expected deleted, ok=%v err=%v", ok, err)
		}
		if err := s.Delete(ctx, "u1", "b-del"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete: %v", err)
		}
	})
}

func sampleBook(owner, id string) domain.Book {
	return domain.Book{
		ID:        id,
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
		Name:      "Dune",
		Author:    "Herbert",
	}
}
