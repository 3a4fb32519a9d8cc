// Package docstore defines the hierarchical document store port. Documents
// live at slash-separated key paths with an even number of segments
// (collection/id pairs), e.g. users/u1/conversations/c1/messages/m1.
package docstore

import "context"

// Doc is one document's field map.
type Doc map[string]any

// Document pairs a document id with its data.
type Document struct {
	ID   string
	Data Doc
}

// Store is the port for hierarchical key-path document operations. The
// conversation gateway is its only consumer; implementations must provide an
// atomic Increment so concurrent writers need no application-level locking.
type Store interface {
	// Create stores doc under the collection at path with a generated id and
	// returns that id.
	Create(ctx context.Context, path string, doc Doc) (string, error)
	// Set writes doc at the document path. With merge, existing fields not
	// present in doc are kept.
	Set(ctx context.Context, path string, doc Doc, merge bool) error
	// Get reads the document at path. Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, path string) (Doc, error)
	// OrderedList reads the collection at path ordered by the given field.
	// limit <= 0 means no limit.
	OrderedList(ctx context.Context, path, orderKey string, desc bool, limit int) ([]Document, error)
	// Delete removes the document at path and, recursively, everything below
	// it.
	Delete(ctx context.Context, path string) error
	// Increment atomically adds delta to a numeric field of the document at
	// path.
	Increment(ctx context.Context, path, field string, delta int64) error
}
