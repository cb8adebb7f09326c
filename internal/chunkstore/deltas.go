package chunkstore

import (
	"fmt"
	"sort"

	"github.com/latticefs/node/internal/chunkaddr"
)

// ApplyRefDeltasFromManifests computes the per-digest signed delta
// between two multisets of digests (an old and a new manifest's chunk
// lists) and applies each delta in ascending digest order via
// ApplyRefDelta. A multiplicity increase is a positive
// delta (newly referenced chunk, or referenced more times), a decrease
// is negative.
//
// Unset slots (sparse ranges) must already be filtered out of old/new
// by the caller — this function only sees actual digests.
func (s *Store) ApplyRefDeltasFromManifests(old, new []chunkaddr.Digest) error {
	counts := make(map[chunkaddr.Digest]int64, len(old)+len(new))
	for _, d := range old {
		counts[d]--
	}
	for _, d := range new {
		counts[d]++
	}

	digests := make([]chunkaddr.Digest, 0, len(counts))
	for d, delta := range counts {
		if delta != 0 {
			digests = append(digests, d)
		}
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i] < digests[j] })

	for _, d := range digests {
		if err := s.ApplyRefDelta(d, counts[d]); err != nil {
			return fmt.Errorf("chunkstore: apply ref deltas: %w", err)
		}
	}
	return nil
}
