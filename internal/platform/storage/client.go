package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	cloudstorage "cloud.google.com/go/storage"
)

// Uploader persists preview images into a bucket before the order transaction
// runs. Only the resulting URL enters the transaction, never raw image data.
type Uploader struct {
	client *cloudstorage.Client
	bucket string
}

// NewUploader constructs an Uploader bound to the given bucket.
func NewUploader(client *cloudstorage.Client, bucket string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// Upload writes the blob under path and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("storage uploader: not initialised")
	}
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("storage uploader: object path is required")
	}
	if len(data) == 0 {
		return "", errors.New("storage uploader: data is empty")
	}

	writer := u.client.Bucket(u.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(bytes.Clone(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write object %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise object %s: %w", path, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, path), nil
}
