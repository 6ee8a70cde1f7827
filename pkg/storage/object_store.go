package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrObjectStore wraps every failure of an object store backend.
var ErrObjectStore = errors.New("object store error")

// ObjectStore hands out URLs for objects in one bucket.
type ObjectStore interface {
	// PresignPut returns a signed write URL valid for expiry.
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	// ObjectURL returns the unsigned address of the object. It does not
	// expire; whether it is readable depends on the bucket policy.
	ObjectURL(ctx context.Context, key string) (string, error)
}

// unsignedURL drops the signature query of a presigned URL, leaving the
// endpoint and key encoding the SDK chose.
func unsignedURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse object url: %w", ErrObjectStore, err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
