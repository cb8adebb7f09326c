package chunkstore

import (
	"errors"

	"github.com/latticefs/node/internal/code"
)

// Sentinel errors for chunk store operations.
var (
	// ErrNotFound is returned when a digest is absent from every local
	// root and the mesh (or no mesh) also has no copy.
	ErrNotFound = errors.New("chunkstore: chunk not found")

	// ErrQuotaExceeded is returned when storing a chunk would push
	// total usage across all roots past the configured byte quota.
	ErrQuotaExceeded = errors.New("chunkstore: quota exceeded")

	// ErrIntegrity is returned when a chunk's on-disk bytes do not
	// hash to the digest under which it is named.
	ErrIntegrity = errors.New("chunkstore: digest mismatch")

	// ErrNoRoots is returned by New when no chunk root is configured.
	ErrNoRoots = errors.New("chunkstore: at least one root is required")
)

// classify maps the package's sentinels to the shared error taxonomy.
// Unrecognized errors are reported as IoError: I/O failures propagate
// directly, with no internal retries.
func classify(err error) code.Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return code.NotFound
	case errors.Is(err, ErrQuotaExceeded):
		return code.QuotaExceeded
	case errors.Is(err, ErrIntegrity):
		return code.IntegrityFailure
	case errors.Is(err, ErrNoRoots):
		return code.InvalidState
	default:
		return code.IoError
	}
}

// Coded wraps err with its classified Kind for callers that only see
// this package's errors through an interface boundary.
func Coded(err error) error {
	if err == nil {
		return nil
	}
	return code.Wrap(classify(err), err)
}
