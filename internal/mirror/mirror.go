// Package mirror talks to an optional external immutable-ledger service.
// The ledger core must keep working when this collaborator is slow, failing
// or entirely absent, so every adapter here is best-effort by contract.
package mirror

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the no-op store; callers treat it as "no
// secondary ledger configured", not as a failure.
var ErrDisabled = errors.New("secondary ledger disabled")

// Document is the generic payload handed to the secondary ledger.
type Document struct {
	ID       string            `json:"id"`
	Hash     string            `json:"hash"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DocumentStore is the store/fetch boundary of the secondary ledger.
type DocumentStore interface {
	// StoreDocument writes doc and returns the opaque external reference.
	StoreDocument(ctx context.Context, doc Document) (string, error)
	// FetchDocument retrieves a previously stored document by reference.
	FetchDocument(ctx context.Context, ref string) (Document, error)
}

// Noop is the adapter used when no secondary ledger is configured.
type Noop struct{}

// StoreDocument always reports the store as disabled.
func (Noop) StoreDocument(ctx context.Context, doc Document) (string, error) {
	return "", ErrDisabled
}

// FetchDocument always reports the store as disabled.
func (Noop) FetchDocument(ctx context.Context, ref string) (Document, error) {
	return Document{}, ErrDisabled
}
