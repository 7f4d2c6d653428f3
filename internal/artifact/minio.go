// Package artifact stores uploaded files in S3-compatible object storage
// and hands back stable URLs.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// New connects to the object store and ensures the bucket exists. baseURL is
// the public prefix under which stored objects are reachable.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket, baseURL string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
	}

	return &Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Store uploads the bytes under a collision-free object name inside folder
// and returns the stable public URL.
func (s *Store) Store(ctx context.Context, data []byte, name, folder string) (string, error) {
	ext := filepath.Ext(name)
	object := fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(ext)})
	if err != nil {
		return "", fmt.Errorf("storing artifact: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, object), nil
}

func contentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
