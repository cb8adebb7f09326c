// Package manifest implements the per-file sidecar: a line-oriented
// text format recording a file's logical size and its ordered,
// possibly sparse, list of chunk digests.
//
// Writes share the same atomic temp-file-plus-rename idiom as
// chunkstore.writeAtomic rather than any binary encoding, so the
// sidecar format stays easy to inspect and diff by hand.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/latticefs/node/internal/chunkaddr"
)

// Suffix is the fixed reserved filename suffix identifying a manifest
// sidecar on disk.
const Suffix = ".chunkmeta"

// filePerm and dirPerm mirror the chunk store's on-disk permissions;
// manifests live alongside user-visible directories, so they stay
// owner-only like everything else the core writes.
const (
	filePerm = 0o600
	dirPerm  = 0o700
)

// Manifest is the decoded sidecar content: logical size and a sparse,
// 0-indexed sequence of chunk digests. A zero value at index i means
// "unset" (a sparse zero range), detected with chunkaddr.Digest's
// Zero() check.
type Manifest struct {
	Size    int64
	Digests []chunkaddr.Digest
}

// Clone returns a deep copy, used by the file handle to snapshot the
// manifest at open time for refcount diffing at release.
func (m Manifest) Clone() Manifest {
	out := Manifest{Size: m.Size, Digests: make([]chunkaddr.Digest, len(m.Digests))}
	copy(out.Digests, m.Digests)
	return out
}

// SetDigests returns the non-zero digests in m, suitable as one side of
// a chunkstore.ApplyRefDeltasFromManifests call — sparse slots are not
// references and must not be counted.
func (m Manifest) SetDigests() []chunkaddr.Digest {
	out := make([]chunkaddr.Digest, 0, len(m.Digests))
	for _, d := range m.Digests {
		if !d.Zero() {
			out = append(out, d)
		}
	}
	return out
}

// PathFor returns the sidecar path for a user-visible file path P
// rooted at backing directory root.
func PathFor(root, relPath string) string {
	return filepath.Join(root, relPath+Suffix)
}

// Load parses the sidecar at path. Unknown lines are ignored for
// forward compatibility; repeated "chunk <i>" lines resolve to the
// last occurrence.
func Load(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNotFound
		}
		return Manifest{}, fmt.Errorf("manifest: load %s: %w", path, err)
	}
	defer f.Close()

	m := Manifest{}
	sawSize := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "size":
			if len(fields) != 2 {
				return Manifest{}, fmt.Errorf("%w: malformed size line %q", ErrParse, line)
			}
			n, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil || n < 0 {
				return Manifest{}, fmt.Errorf("%w: malformed size %q", ErrParse, fields[1])
			}
			m.Size = n
			sawSize = true
		case "chunk":
			if len(fields) != 3 {
				return Manifest{}, fmt.Errorf("%w: malformed chunk line %q", ErrParse, line)
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil || idx < 0 {
				return Manifest{}, fmt.Errorf("%w: malformed chunk index %q", ErrParse, fields[1])
			}
			d, err := chunkaddr.FromHex(fields[2])
			if err != nil {
				return Manifest{}, fmt.Errorf("%w: %v", ErrParse, err)
			}
			if idx >= len(m.Digests) {
				grown := make([]chunkaddr.Digest, idx+1)
				copy(grown, m.Digests)
				m.Digests = grown
			}
			m.Digests[idx] = d
		default:
			// Forward-compatible: unknown line kinds are ignored.
		}
	}
	if err := sc.Err(); err != nil {
		return Manifest{}, fmt.Errorf("manifest: load %s: %w", path, err)
	}
	if !sawSize {
		return Manifest{}, fmt.Errorf("%w: missing size line", ErrParse)
	}
	return m, nil
}

// SaveAtomic writes m to path via a temp-file-plus-rename sequence in
// the same directory, so the sidecar is either the pre-save state or
// the new state in full — never a partial file, even across a crash
// between the temp write and the rename.
func SaveAtomic(path string, m Manifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "size %d\n", m.Size)
	for i, d := range m.Digests {
		if d.Zero() {
			continue
		}
		fmt.Fprintf(&buf, "chunk %d %s\n", i, d.Hex())
	}

	tmp, err := os.CreateTemp(dir, ".tmp-manifest-*")
	if err != nil {
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: save %s: %w", path, err)
	}
	return nil
}

// Delete removes the manifest at path. A missing manifest is not an
// error (unlink on an already-unlinked file is idempotent).
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("manifest: delete %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a manifest is present at path — manifest
// existence is the sole source of truth for file presence.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Rename moves the manifest sidecar from one path to another.
func Rename(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), dirPerm); err != nil {
		return fmt.Errorf("manifest: rename %s -> %s: %w", from, to, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("manifest: rename %s -> %s: %w", from, to, err)
	}
	return nil
}
