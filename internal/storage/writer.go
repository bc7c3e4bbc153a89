/**
 * Document stores for extracted records
 *
 * Every backend is keyed by the canonical absolute path of the source file and
 * writes are conditional, so repeated runs over the same directory do not
 * duplicate records.
 */

package storage

import (
	"context"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

// Document is the record persisted for one source file
type Document map[string]interface{}

// Payload maps a key to its document. WriteData accepts exactly one entry.
type Payload map[string]Document

// Writer is implemented by every store backend
type Writer interface {
	// Name identifies the backend in logs and errors
	Name() string

	// Exists reports whether a record is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// WriteData stores the single entry of payload. Without force an existing
	// record is left untouched and false is returned. With force the record is
	// replaced. The check and the write are one atomic store operation.
	WriteData(ctx context.Context, payload Payload, force bool) (bool, error)

	Close() error
}

// Reader is implemented by backends that can return stored records
type Reader interface {
	Read(ctx context.Context, key string) (Document, bool, error)
	Count(ctx context.Context) (int64, error)
}

// singleEntry unpacks a payload, rejecting anything but exactly one key
func singleEntry(payload Payload) (string, Document, error) {
	if len(payload) != 1 {
		return "", nil, apperrors.NewStoreUsageError(len(payload))
	}
	for key, doc := range payload {
		return key, doc, nil
	}
	return "", nil, nil
}

// withID copies doc and adds the key as _id
func withID(key string, doc Document) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = key
	return out
}
