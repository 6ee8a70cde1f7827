package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

const defaultUploadExpiry = 5 * time.Minute

// AttachmentsConfig controls key layout and the upload URL lifetime.
type AttachmentsConfig struct {
	KeyPrefix    string
	UploadExpiry time.Duration
	// PublicBaseURL, when set, makes retrieval URLs links under it (a CDN
	// or website endpoint) instead of the bucket's own object URL.
	PublicBaseURL string
}

// Attachments maps attachment ids to object keys and hands out URLs for them.
type Attachments struct {
	store         ObjectStore
	prefix        string
	uploadExpiry  time.Duration
	publicBaseURL string
}

// NewAttachments wraps an object store.
func NewAttachments(store ObjectStore, cfg AttachmentsConfig) (*Attachments, error) {
	if store == nil {
		return nil, errors.New("attachments require an object store")
	}
	base := strings.TrimSpace(cfg.PublicBaseURL)
	if base != "" {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.New("attachments publicBaseURL must be an absolute URL")
		}
		base = strings.TrimRight(base, "/") + "/"
	}
	upload := cfg.UploadExpiry
	if upload <= 0 {
		upload = defaultUploadExpiry
	}
	return &Attachments{
		store:         store,
		prefix:        cfg.KeyPrefix,
		uploadExpiry:  upload,
		publicBaseURL: base,
	}, nil
}

// Key is the object key of an attachment.
func (a *Attachments) Key(attachmentID string) string {
	return a.prefix + attachmentID
}

// UploadURL returns a write URL for the attachment that expires after the
// configured upload lifetime.
func (a *Attachments) UploadURL(ctx context.Context, attachmentID string) (string, error) {
	if attachmentID == "" {
		return "", errors.New("attachment id is required")
	}
	return a.store.PresignPut(ctx, a.Key(attachmentID), a.uploadExpiry)
}

// RetrievalURL returns the URL a client reads the attachment from. It is
// stored on the book, so it never carries a signature or an expiry.
func (a *Attachments) RetrievalURL(ctx context.Context, attachmentID string) (string, error) {
	if attachmentID == "" {
		return "", errors.New("attachment id is required")
	}
	key := a.Key(attachmentID)
	if a.publicBaseURL != "" {
		return a.publicBaseURL + key, nil
	}
	return a.store.ObjectURL(ctx, key)
}
