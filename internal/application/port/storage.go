package port

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore when the key does not exist
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore stores opaque blobs such as signature images
type ObjectStore interface {
	// Put writes data under key and returns the stored key
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
