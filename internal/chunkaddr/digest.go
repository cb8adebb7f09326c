// Package chunkaddr is the content-address type shared by every layer
// that names a chunk: a 32-byte SHA-256 digest, carried as an
// opencontainers/go-digest Digest so the on-disk path layout and the
// wire format both reuse one well-known string form ("sha256:<hex>")
// instead of the core inventing its own.
package chunkaddr

import (
	"crypto/sha256"
	"fmt"

	digest "github.com/opencontainers/go-digest"
)

// Size is the fixed digest length in bytes.
const Size = sha256.Size

// Digest identifies a chunk by the SHA-256 hash of its exact bytes.
//
// The on-disk shard layout bakes the algorithm name into directories
// (".../sha256/<2-hex>/<64-hex>"); a Digest always carries
// algorithm "sha256" and must never be constructed from another
// algorithm's output.
type Digest digest.Digest

// Zero reports whether d is the unset value.
func (d Digest) Zero() bool { return d == "" }

// Hex returns the lowercase 64-character hex encoding used in on-disk
// paths and manifest lines.
func (d Digest) Hex() string { return digest.Digest(d).Encoded() }

// String renders the canonical "sha256:<hex>" form.
func (d Digest) String() string { return string(d) }

// ShardPrefix returns the first n hex characters of the digest, used to
// pick the chunk/refcount shard directory.
func (d Digest) ShardPrefix(n int) string {
	h := d.Hex()
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// FromHex parses a bare 64-character hex digest (as read from a
// manifest "chunk <i> <hex>" line or an on-disk shard filename) into a
// Digest. It does not touch any bytes, so it cannot by itself detect a
// forged name — callers that need that guarantee must re-hash the
// content and compare (see hashsum.Sum).
func FromHex(hex string) (Digest, error) {
	if len(hex) != 2*Size {
		return "", fmt.Errorf("chunkaddr: digest hex must be %d characters, got %d", 2*Size, len(hex))
	}
	d := digest.NewDigestFromEncoded(digest.SHA256, hex)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("chunkaddr: invalid digest %q: %w", hex, err)
	}
	return Digest(d), nil
}

// Sum computes the Digest of b directly. Streaming callers should use
// hashsum.New instead so large chunks are never held twice in memory.
func Sum(b []byte) Digest {
	return Digest(digest.FromBytes(b))
}
