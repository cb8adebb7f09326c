package chunkstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/latticefs/node/internal/chunkaddr"
)

// ApplyRefDelta applies a signed reference-count change to digest d,
// under an exclusive OS-level file lock on its refcount file for the
// duration of the read-modify-write. The refcount file lives on the
// primary root only.
//
// Safety rule: if delta is negative and the refcount file is missing or
// empty (== unknown), this is a silent no-op — a chunk whose reference
// count is unknown must never be decremented toward deletion.
func (s *Store) ApplyRefDelta(d chunkaddr.Digest, delta int64) error {
	hex := d.Hex()
	path := refPath(s.roots[0], hex)

	f, err := s.openRefFileForUpdate(path, delta)
	if err != nil {
		return fmt.Errorf("chunkstore: apply ref delta %s: %w", d, err)
	}
	if f == nil {
		// Negative delta against a refcount file that does not exist:
		// no file, no lock, no-op.
		return nil
	}
	defer f.Close()

	if err := flockExclusive(f.Fd()); err != nil {
		return fmt.Errorf("chunkstore: lock refcount %s: %w", d, err)
	}
	defer flockUnlock(f.Fd())

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("chunkstore: read refcount %s: %w", d, err)
	}

	current, known := parseRefcount(data)
	if delta < 0 && !known {
		return nil
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	if next == 0 {
		f.Close()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("chunkstore: remove refcount %s: %w", d, err)
		}
		return s.deleteChunkEverywhere(hex)
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("chunkstore: write refcount %s: %w", d, err)
	}
	if _, err := f.WriteAt([]byte(strconv.FormatInt(next, 10)+"\n"), 0); err != nil {
		return fmt.Errorf("chunkstore: write refcount %s: %w", d, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("chunkstore: sync refcount %s: %w", d, err)
	}
	return nil
}

// openRefFileForUpdate opens the refcount file for read-modify-write.
// For a negative delta it never creates a missing file: it returns
// (nil, nil) to signal the caller should no-op. For a non-negative
// delta it creates the file (and its shard directory) if necessary.
func (s *Store) openRefFileForUpdate(path string, delta int64) (*os.File, error) {
	if delta < 0 {
		f, err := os.OpenFile(path, os.O_RDWR, filePerm)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return f, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
}

// parseRefcount parses an ASCII-decimal refcount file's contents.
// Empty content reports known=false: an empty or missing refcount file
// means the count is unknown, not zero.
func parseRefcount(data []byte) (value int64, known bool) {
	s := strings.TrimSpace(string(bytes.TrimSpace(data)))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// deleteChunkEverywhere removes the chunk file for hex from every root,
// once its refcount has reached zero. Absence in a given root is not an
// error (the chunk may have been stored in only one root).
func (s *Store) deleteChunkEverywhere(hex string) error {
	for _, root := range s.roots {
		p := chunkPath(root, hex)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("chunkstore: delete chunk %s from %s: %w", hex, root, err)
		}
	}
	return nil
}
