package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"moorecollect/config"
	"moorecollect/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore on any S3 compatible endpoint.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	timeout    time.Duration
}

// NewMinioStore creates a store from configuration. It does not contact the
// server; call Ping for that.
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MinioStore{client: client, bucketName: cfg.S3Bucket, timeout: timeout}, nil
}

// Bucket returns the configured bucket name.
func (m *MinioStore) Bucket() string {
	return m.bucketName
}

// Ping verifies the endpoint is reachable and the bucket exists.
func (m *MinioStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucketName, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucketName)
	}
	logger.Info("object store reachable", logger.String("bucket", m.bucketName))
	return nil
}

// Put uploads data to key, replacing any existing object.
func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	object, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrapErr("get", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, m.wrapErr("read", key, err)
	}
	return data, nil
}

func (m *MinioStore) wrapErr(op, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// List returns every key under prefix. minio-go pages through
// ListObjectsV2 internally.
func (m *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var keys []string
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// PresignedURL returns a time-limited GET URL for key.
func (m *MinioStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
