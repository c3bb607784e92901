// Package archive stores full optimized-route payloads in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultBucket holds archived route payloads
const DefaultBucket = "optimized-routes"

// Archiver persists a route payload and returns its object key
type Archiver interface {
	Archive(ctx context.Context, routeID string, createdAt time.Time, payload []byte) (string, error)
}

// Config holds the object storage connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// ObjectStore is the subset of *minio.Client the archiver needs
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Archiver writes payloads as JSON objects under routes/<date>/<id>.json
type S3Archiver struct {
	client ObjectStore
	bucket string
}

// NewS3Archiver connects to the endpoint and ensures the bucket exists
func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing one or more required settings: endpoint, access key, secret key")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	a := &S3Archiver{client: client, bucket: cfg.Bucket}
	if a.bucket == "" {
		a.bucket = DefaultBucket
	}
	if err := a.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}

	log.Printf("[ARCHIVE] Connected: endpoint=%s bucket=%s", cfg.Endpoint, a.bucket)
	return a, nil
}

// NewS3ArchiverWithClient wraps an existing object store client
func NewS3ArchiverWithClient(client ObjectStore, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

func (a *S3Archiver) ensureBucket(ctx context.Context, region string) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ObjectKey returns the key a route payload is stored under
func ObjectKey(routeID string, createdAt time.Time) string {
	return fmt.Sprintf("routes/%s/%s.json", createdAt.UTC().Format("2006-01-02"), sanitizeKey(routeID))
}

func (a *S3Archiver) Archive(ctx context.Context, routeID string, createdAt time.Time, payload []byte) (string, error) {
	key := ObjectKey(routeID, createdAt)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("failed to store route payload: %w", err)
	}

	log.Printf("[ARCHIVE] Stored: bucket=%s key=%s bytes=%d", a.bucket, key, len(payload))
	return key, nil
}

func sanitizeKey(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// NoopArchiver discards payloads
type NoopArchiver struct{}

func (NoopArchiver) Archive(context.Context, string, time.Time, []byte) (string, error) {
	return "", nil
}
