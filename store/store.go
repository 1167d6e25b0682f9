// Package store persists document blobs and the per-document catalog
// of version keys.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document or blob key does not exist.
var ErrNotFound = errors.New("store: not found")

// Record is one uploaded document: its display name plus the ordered
// blob keys of every saved revision, oldest first.
type Record struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Versions  []string
}

// Clone returns a copy whose Versions slice is independent.
func (r Record) Clone() Record {
	out := r
	out.Versions = append([]string(nil), r.Versions...)
	return out
}

// BlobStore holds immutable document revisions keyed by opaque keys.
type BlobStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// DocumentStore is the catalog of uploaded documents.
type DocumentStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
