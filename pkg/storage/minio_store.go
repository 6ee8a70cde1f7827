package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig describes a MinIO (or other S3 compatible) bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region avoids a bucket-location lookup before every presign.
	Region string
	// EnsureBucket checks for the bucket at startup and creates it if missing.
	EnsureBucket bool
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore builds the client and optionally ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio store requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init minio client: %w", ErrObjectStore, err)
	}
	if cfg.EnsureBucket {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: check bucket: %w", ErrObjectStore, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("%w: create bucket: %w", ErrObjectStore, err)
			}
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// PresignPut generates a pre-signed PUT URL.
func (m *MinioStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedPutObject(ctx, m.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("%w: presign put: %w", ErrObjectStore, err)
	}
	return u.String(), nil
}

// ObjectURL returns the object's address without a signature.
func (m *MinioStore) ObjectURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, time.Minute, nil)
	if err != nil {
		return "", fmt.Errorf("%w: resolve object url: %w", ErrObjectStore, err)
	}
	return unsignedURL(u.String())
}
