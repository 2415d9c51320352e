package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is the object-storage port: everything the lifecycle manager and the
// status sync bridge need from a bucket, nothing more.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
	MultipartInit(ctx context.Context, key string, parts int, ttl time.Duration) (*MultipartUpload, error)
	MultipartComplete(ctx context.Context, key, uploadID string, parts []CompletedPart) error
}

// MultipartUpload is the bookkeeping a client needs to push one file in
// parts: the upload id plus one presigned URL per part, in part order.
type MultipartUpload struct {
	UploadID string   `json:"upload_id"`
	Bucket   string   `json:"bucket"`
	Key      string   `json:"key"`
	PartURLs []string `json:"s3_signed_urls"`
}

type CompletedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// SplitLocation splits "s3://bucket/key/prefix" into bucket and key.
func SplitLocation(location string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	if trimmed == location {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("malformed s3 location: %s", location)
	}

	return parts[0], parts[1], nil
}
