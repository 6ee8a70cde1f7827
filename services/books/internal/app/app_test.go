package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"favbooks/internal/util"
	"favbooks/pkg/domain"
	"favbooks/pkg/storage"
	"favbooks/pkg/store"
)

type fakeAttachments struct {
	uploads []string
	err     error
}

func (f *fakeAttachments) UploadURL(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, id)
	return "https://bucket.test/upload/" + id + "?sig=1", nil
}

func (f *fakeAttachments) RetrievalURL(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://bucket.test/" + id, nil
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	n := 0
	a, err := New(Config{
		Store:       s,
		Attachments: &fakeAttachments{},
		Now:         func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, s
}

func createDune(t *testing.T, a *App, owner string) domain.Book {
	t.Helper()
	b, err := a.Create(context.Background(), owner, domain.NewBook{
		Name:      "Dune",
		Author:    "Herbert",
		ReviewURL: "https://example.com/dune",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return b
}

func TestCreateThenList(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	first := createDune(t, a, "u1")
	second := createDune(t, a, "u1")
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first.ID, second.ID)
	}
	if first.Done || first.AttachmentURL != nil {
		t.Fatalf("unexpected initial state: %+v", first)
	}
	if !first.CreatedAt.Equal(fixedNow) || first.OwnerID != "u1" {
		t.Fatalf("unexpected identity: %+v", first)
	}

	books, err := a.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	other, err := a.List(ctx, "u2")
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if other == nil || len(other) != 0 {
		t.Fatalf("expected empty list, got %#v", other)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	a, _ := newTestApp(t)
	tests := []struct {
		name  string
		owner string
		book  domain.NewBook
	}{
		{"missing owner", "", domain.NewBook{Name: "Dune", Author: "Herbert"}},
		{"missing name", "u1", domain.NewBook{Author: "Herbert"}},
		{"blank author", "u1", domain.NewBook{Name: "Dune", Author: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Create(context.Background(), tt.owner, tt.book); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCrossOwnerOperationsAreForbidden(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()
	book := createDune(t, a, "u1")

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := a.Get(ctx, "u2", book.ID); return err }},
		{"update", func() error {
			return a.Update(ctx, "u2", book.ID, domain.BookUpdate{Name: "X", Author: "Y", Done: true})
		}},
		{"delete", func() error { return a.Delete(ctx, "u2", book.ID) }},
		{"assign attachment", func() error { _, err := a.AssignAttachment(ctx, "u2", book.ID, "att-1"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}

	got, ok, err := s.GetOne(ctx, book.ID)
	if err != nil || !ok {
		t.Fatalf("book vanished: ok=%v err=%v", ok, err)
	}
	if got != book {
		t.Fatalf("book changed: %+v", got)
	}
}

func TestUnknownBookIsNotFound(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	if _, err := a.Get(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if err := a.Update(ctx, "u1", "missing", domain.BookUpdate{Name: "X", Author: "Y"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
	if err := a.Delete(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.AssignAttachment(ctx, "u1", "missing", "att-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("assign: %v", err)
	}
}

func TestUpdateReplacesFieldsIdempotently(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	book := createDune(t, a, "u1")
	upd := domain.BookUpdate{Name: "Dune", Author: "Frank Herbert", ReviewURL: "", Done: true}

	for i := range 2 {
		if err := a.Update(ctx, "u1", book.ID, upd); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, err := a.Get(ctx, "u1", book.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := upd.Apply(book)
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDeleteTwiceReportsNotFound(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	book := createDune(t, a, "u1")
	if err := a.Delete(ctx, "u1", book.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.Delete(ctx, "u1", book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	books, err := a.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 0 {
		t.Fatalf("expected no books, got %d", len(books))
	}
}

func TestAttachmentFlow(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	book := createDune(t, a, "u1")

	attID := a.NewAttachmentID()
	upload, err := a.IssueUploadURL(ctx, attID)
	if err != nil {
		t.Fatalf("issue upload url: %v", err)
	}
	if upload != "https://bucket.test/upload/"+attID+"?sig=1" {
		t.Fatalf("unexpected upload url: %s", upload)
	}
	url, err := a.AssignAttachment(ctx, "u1", book.ID, attID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := a.Get(ctx, "u1", book.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AttachmentURL == nil || *got.AttachmentURL != url || url != "https://bucket.test/"+attID {
		t.Fatalf("attachment not recorded: %v", got.AttachmentURL)
	}
}

func TestAssignedAttachmentURLDoesNotExpire(t *testing.T) {
	objects, err := storage.NewS3Store(aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	}, storage.S3Options{Bucket: "favbooks-images"})
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	attachments, err := storage.NewAttachments(objects, storage.AttachmentsConfig{})
	if err != nil {
		t.Fatalf("new attachments: %v", err)
	}
	a, err := New(Config{Store: store.NewMemoryStore(), Attachments: attachments})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()
	book := createDune(t, a, "u1")
	attID := a.NewAttachmentID()

	upload, err := a.IssueUploadURL(ctx, attID)
	if err != nil {
		t.Fatalf("issue upload url: %v", err)
	}
	if !strings.Contains(upload, "X-Amz-Signature=") || !strings.Contains(upload, "X-Amz-Expires=300") {
		t.Fatalf("upload url should be signed and short lived: %s", upload)
	}

	if _, err := a.AssignAttachment(ctx, "u1", book.ID, attID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := a.Get(ctx, "u1", book.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AttachmentURL == nil {
		t.Fatalf("attachment not recorded")
	}
	u, err := url.Parse(*got.AttachmentURL)
	if err != nil {
		t.Fatalf("parse attachment url: %v", err)
	}
	if u.RawQuery != "" || strings.Contains(*got.AttachmentURL, "X-Amz-Expires") {
		t.Fatalf("stored attachment url must not expire: %s", *got.AttachmentURL)
	}
	if !strings.HasPrefix(u.Host, "favbooks-images.") || u.Path != "/"+attID {
		t.Fatalf("unexpected attachment url: %s", *got.AttachmentURL)
	}
}

func TestCreateKeepsMicrosecondTimestamp(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2024, 5, 1, 9, 30, 0, 123456789, time.FixedZone("CEST", 2*60*60))
	a, err := New(Config{Store: s, Attachments: &fakeAttachments{}, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	book := createDune(t, a, "u1")

	want := time.Date(2024, 5, 1, 7, 30, 0, 123456000, time.UTC)
	if !book.CreatedAt.Equal(want) || book.CreatedAt.Location() != time.UTC {
		t.Fatalf("createdAt = %v, want %v", book.CreatedAt, want)
	}
	stored, err := a.Get(context.Background(), "u1", book.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.CreatedAt.Equal(book.CreatedAt) {
		t.Fatalf("stored createdAt %v differs from returned %v", stored.CreatedAt, book.CreatedAt)
	}
}

func TestCreateLogsOwnerOnce(t *testing.T) {
	a, _ := newTestApp(t)
	var buf bytes.Buffer
	logger := util.NewLogger(&buf, "info", "json").With("owner_id", "u1")
	ctx := util.ContextWithLogger(context.Background(), logger)

	if _, err := a.Create(ctx, "u1", domain.NewBook{Name: "Dune", Author: "Herbert"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if strings.Count(line, `"owner_id"`) != 1 {
		t.Fatalf("owner_id should appear once: %s", line)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "book created" || entry["book_id"] != "id-1" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestAttachmentStoreFailure(t *testing.T) {
	boom := errors.New("presign failed")
	a, err := New(Config{Store: store.NewMemoryStore(), Attachments: &fakeAttachments{err: boom}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.IssueUploadURL(context.Background(), "att-1"); !errors.Is(err, boom) {
		t.Fatalf("expected presign error, got %v", err)
	}
	if _, err := a.IssueUploadURL(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{Attachments: &fakeAttachments{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error without attachments")
	}
}
