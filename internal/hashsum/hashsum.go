// Package hashsum is the hash engine of §4.1: a streaming SHA-256
// digest with a one-shot helper, both producing chunkaddr.Digest
// values (the one-shot Sum delegates to chunkaddr.Sum).
//
// SHA-256 is fixed, not pluggable: the on-disk path layout
// ("sha256/<2-hex>/<64-hex>") bakes the algorithm name into directory
// names, so substituting a different algorithm here would require a
// layout migration, not a config flag.
package hashsum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/latticefs/node/internal/chunkaddr"
)

// Hash is the streaming init/update/final interface over the chunk
// hash. The zero value is not usable; construct with New.
type Hash struct {
	h hash.Hash
}

// New starts a new streaming digest computation.
func New() *Hash {
	return &Hash{h: sha256.New()}
}

// Update feeds more bytes into the digest. It never returns an error:
// hash.Hash.Write is documented to never fail.
func (d *Hash) Update(p []byte) {
	_, _ = d.h.Write(p)
}

// Final returns the digest of everything written so far. The Hash may
// not be reused after Final; construct a new one.
func (d *Hash) Final() chunkaddr.Digest {
	var sum [chunkaddr.Size]byte
	d.h.Sum(sum[:0])
	dg, err := chunkaddr.FromHex(hex.EncodeToString(sum[:]))
	if err != nil {
		// sum is always exactly Size bytes of a real sha256 state, so
		// this can only happen if the crypto/sha256 implementation
		// itself is broken.
		panic("hashsum: impossible digest encoding error: " + err.Error())
	}
	return dg
}

// Sum is the one-shot helper: hash all of p and return the digest.
func Sum(p []byte) chunkaddr.Digest {
	return chunkaddr.Sum(p)
}
