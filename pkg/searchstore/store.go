package searchstore

import (
	"context"
	"errors"
)

// ErrIndexNotFound is returned by DeleteIndex when the index does not exist.
var ErrIndexNotFound = errors.New("index not found")

// IndexResult is the store's acknowledgment of a single document write.
type IndexResult struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

// DocumentStore is the contract the bridge needs from a search backend.
// Implementations make exactly one attempt per call; there is no retry layer.
type DocumentStore interface {
	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, index string) (bool, error)

	// CreateIndex creates the named index. body may carry settings and
	// mappings; an empty body creates the index with cluster defaults.
	CreateIndex(ctx context.Context, index string, body []byte) error

	// DeleteIndex removes the named index. Deleting an absent index returns
	// an error wrapping ErrIndexNotFound.
	DeleteIndex(ctx context.Context, index string) error

	// IndexDocument writes one JSON document and returns the store's
	// acknowledgment (e.g. "created").
	IndexDocument(ctx context.Context, index string, document []byte) (*IndexResult, error)
}
