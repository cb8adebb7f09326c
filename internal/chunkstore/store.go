// Package chunkstore implements a sharded, content-addressed,
// reference-counted chunk repository: a set of chunk roots striped
// round-robin for new writes, each laid out as
//
//	<root>/INTERNAL/chunks/sha256/<2-hex>/<64-hex>
//	<root>/INTERNAL/refs/<2-hex>/<64-hex>.ref   (primary root only)
//
// built around the same sharded, atomic temp-file-plus-rename disk
// cache shape, generalized with reference counts, a multi-root round
// robin, and a byte quota.
package chunkstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/latticefs/node/internal/mesh"
)

// CHUNK_SIZE is the fixed chunk unit. Named in SCREAMING_SNAKE_CASE
// because it is a wire/layout constant shared with manifests and the
// mesh protocol, not an internal tuning knob.
const CHUNK_SIZE = 1 << 20 // 1 MiB

const (
	internalDir    = "INTERNAL"
	chunksSubdir   = "chunks/sha256"
	refsSubdir     = "refs"
	refFileSuffix  = ".ref"
	shardPrefixLen = 2
	dirPerm        = 0o700
	filePerm       = 0o600
)

// Store is the process-wide chunk repository: the root list and quota
// are read-only after New returns; the round-robin cursor is the only
// mutable shared state besides the refcount files themselves.
type Store struct {
	roots []string // roots[0] is the primary root (holds refcount files)
	quota int64    // 0 = unbounded

	cursorMu sync.Mutex
	cursor   int

	collab     mesh.Collaborator
	fetchGroup singleflight.Group
}

// New creates a Store striping new chunks across roots in round-robin
// order. roots[0] is the primary root and is the only one that carries
// refcount files. A nil collab defaults to mesh.NullCollaborator.
func New(roots []string, quotaBytes int64, collab mesh.Collaborator) (*Store, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	if quotaBytes < 0 {
		return nil, errors.New("chunkstore: quota must be >= 0")
	}
	if collab == nil {
		collab = mesh.NullCollaborator{}
	}
	abs := make([]string, len(roots))
	for i, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		abs[i] = a
		if err := os.MkdirAll(filepath.Join(a, internalDir, chunksSubdir), dirPerm); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Join(abs[0], internalDir, refsSubdir), dirPerm); err != nil {
		return nil, err
	}
	return &Store{roots: abs, quota: quotaBytes, collab: collab}, nil
}

// Quota returns the configured byte quota across all roots (0 = unbounded).
func (s *Store) Quota() int64 { return s.quota }

// Roots returns the configured chunk roots, primary first. The slice is
// shared and must not be mutated.
func (s *Store) Roots() []string { return s.roots }

func chunkPath(root, hex string) string {
	return filepath.Join(root, internalDir, chunksSubdir, hex[:shardPrefixLen], hex)
}

func refPath(primaryRoot, hex string) string {
	return filepath.Join(primaryRoot, internalDir, refsSubdir, hex[:shardPrefixLen], hex+refFileSuffix)
}

// nextRoot advances the round-robin cursor and returns the chosen root.
func (s *Store) nextRoot() string {
	s.cursorMu.Lock()
	r := s.roots[s.cursor%len(s.roots)]
	s.cursor++
	s.cursorMu.Unlock()
	return r
}
