// Package blobstore abstracts durable storage of uploaded documents.
package blobstore

import (
	"context"
)

// Store is the minimal surface the pipeline needs: fetch the uploaded PDF,
// write derived artifacts, and check existence before kicking off OCR.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Bucket names the underlying container; empty for local stores.
	Bucket() string
}
