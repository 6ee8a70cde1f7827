package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// presigner is the part of *s3.PresignClient the store uses.
type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options selects the bucket and, for S3 compatible services, the endpoint.
type S3Options struct {
	Bucket string
	// Endpoint overrides the AWS endpoint, e.g. "http://127.0.0.1:9000".
	Endpoint     string
	UsePathStyle bool
}

// S3Store implements ObjectStore with the AWS SDK presign client.
type S3Store struct {
	presign presigner
	bucket  string
}

// NewS3Store builds a presign client from an AWS config. Presigning is a
// local signing operation; no request reaches S3 until the URL is used.
func NewS3Store(cfg aws.Config, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Store{presign: s3.NewPresignClient(client), bucket: opts.Bucket}, nil
}

// PresignPut generates a pre-signed PUT URL.
func (s *S3Store) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("%w: presign put: %w", ErrObjectStore, err)
	}
	return req.URL, nil
}

// ObjectURL resolves the object's address through the presigner, so the
// endpoint override and addressing style match the upload URL.
func (s *S3Store) ObjectURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: resolve object url: %w", ErrObjectStore, err)
	}
	return unsignedURL(req.URL)
}
