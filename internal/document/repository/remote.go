package repository

import (
	"context"
	"errors"

	"markdraft/internal/document/model"
)

// ErrNotProvisioned marks a remote failure caused by missing backend
// provisioning (a table that was never migrated, a composite index that was
// never created) rather than a transient outage. The coordinator logs it
// with a hint but still treats it as an ordinary failure for fallback.
var ErrNotProvisioned = errors.New("remote store not provisioned")

// RemoteStore is the durable, multi-device document backend. Every
// operation is scoped to one owner; cross-owner access is not expressible
// through this interface.
type RemoteStore interface {
	// ReadAll returns all of the owner's documents keyed by id, ordered
	// server-side by updated_at descending (map iteration loses the order;
	// callers re-sort, the ordering clause keeps the backend honest about
	// having the index).
	ReadAll(ctx context.Context, ownerID string) (map[string]model.Document, error)

	// Write persists the document. With an id it updates exactly title,
	// content and updated_at, preserving server-side fields; without one it
	// inserts a new record stamped with ownerID and returns the
	// backend-assigned id.
	Write(ctx context.Context, doc model.Document, ownerID string) (string, error)

	// Delete removes the record. Deleting an id that is already absent is
	// success, not an error.
	Delete(ctx context.Context, id, ownerID string) error
}
