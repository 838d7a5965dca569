package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore keeps small opaque documents, such as attempt snapshots, by key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error) // ErrNotFound when absent
	Delete(ctx context.Context, key string) error        // deleting a missing key is not an error
	List(ctx context.Context, prefix string) ([]string, error)
}
