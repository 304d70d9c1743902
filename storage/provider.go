// Package storage defines the StorageProvider capability set (spec §4.1):
// physical byte I/O keyed by (owner_id, file_id), with two interchangeable
// backends, Local and S3, and the native multipart primitives each backend
// speaks on its own terms.
package storage

import (
	"context"
	"io"
)

// Part describes one completed chunk of a multipart upload, in the form the
// provider needs to finish assembling the object.
type Part struct {
	PartNumber int32
	ETag       string
}

// UploadedPart is the result of a single upload_part call.
type UploadedPart struct {
	PartNumber  int32
	ETag        string
	ActualBytes int64
}

// RangedObject is a byte stream opened for a ranged or full download,
// together with the length the caller should advertise.
type RangedObject struct {
	Reader        io.ReadCloser
	ContentLength int64
}

// Range expresses an inclusive byte range for a ranged download. A zero
// value requests the full object.
type Range struct {
	Start int64
	End   int64 // 0 means "to the end of the object"
}

// Provider is implemented by every storage backend. All operations key the
// object by (ownerID, fileID); the provider owns how that maps onto its own
// address space (a filesystem path, an S3 key, ...).
//
// Implementations must leave no torn objects: a failed save or a failed
// complete_multipart must not leave a partially-written object visible to
// get_response or exists.
type Provider interface {
	// Save writes the entirety of stream to the object addressed by
	// (ownerID, fileID). It fails with xfererr.OversizeStream if stream
	// produces more than maxSize bytes, and returns the number of bytes
	// actually written otherwise.
	Save(ctx context.Context, ownerID, fileID string, stream io.Reader, maxSize int64) (actualBytes int64, err error)

	// GetResponse opens the object for a ranged or full download.
	GetResponse(ctx context.Context, ownerID, fileID string, byteRange *Range) (RangedObject, error)

	// Delete removes the object. Idempotent: deleting an absent object is
	// not an error.
	Delete(ctx context.Context, ownerID, fileID string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, ownerID, fileID string) (bool, error)

	// InitiateMultipart opens a new multipart session and returns a
	// provider-scoped upload id.
	InitiateMultipart(ctx context.Context, ownerID, fileID string) (uploadID string, err error)

	// UploadPart streams a single chunk into the named upload. It fails
	// with xfererr.OversizeStream if stream produces more than maxSize
	// bytes.
	UploadPart(ctx context.Context, ownerID, fileID, uploadID string, partNumber int32, stream io.Reader, maxSize int64) (UploadedPart, error)

	// CompleteMultipart assembles the object from the given parts, which
	// must be supplied in ascending part-number order. The provider
	// verifies every etag before committing.
	CompleteMultipart(ctx context.Context, ownerID, fileID, uploadID string, parts []Part) error

	// AbortMultipart discards an in-progress upload. Idempotent: aborting
	// a session with missing or already-cleaned-up chunks still succeeds.
	AbortMultipart(ctx context.Context, ownerID, fileID, uploadID string) error
}

// UserDataProvider is implemented by backends that can operate on an
// owner's entire object set at once (S3's prefix listing makes this cheap;
// a local backend would have to walk a subtree to offer the same thing).
type UserDataProvider interface {
	// DeleteUserData removes every object belonging to ownerID.
	DeleteUserData(ctx context.Context, ownerID string) error

	// GetUserStorageSize sums the size of every object belonging to
	// ownerID, independent of the HierarchyIndex's bookkeeping. Used for
	// reconciliation, not the hot path.
	GetUserStorageSize(ctx context.Context, ownerID string) (int64, error)
}
