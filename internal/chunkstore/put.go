package chunkstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/latticefs/node/internal/chunkaddr"
)

// locate returns the path of digest's chunk file in whichever root
// holds it, trying roots in declared order.
func (s *Store) locate(d chunkaddr.Digest) (string, bool) {
	hex := d.Hex()
	for _, root := range s.roots {
		p := chunkPath(root, hex)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// PutIfMissing stores data under digest d if no root already holds it.
// Writes are atomic with respect to crash: the final chunk path is
// written to a sibling temp file, fsynced, then renamed into place, so
// it is never observable with partial contents. On a genuinely new
// write, the mesh collaborator is notified via ReplicateChunk —
// fire-and-forget, its outcome never affects the caller.
func (s *Store) PutIfMissing(ctx context.Context, d chunkaddr.Digest, data []byte) error {
	if _, ok := s.locate(d); ok {
		return nil
	}

	if s.quota > 0 {
		used, err := s.Usage()
		if err != nil {
			return fmt.Errorf("chunkstore: put %s: %w", d, err)
		}
		if used+int64(len(data)) > s.quota {
			return ErrQuotaExceeded
		}
	}

	root := s.nextRoot()
	hex := d.Hex()
	dir := filepath.Join(root, internalDir, chunksSubdir, hex[:shardPrefixLen])
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("chunkstore: put %s: %w", d, err)
	}

	final := chunkPath(root, hex)
	if err := writeAtomic(dir, final, data); err != nil {
		return fmt.Errorf("chunkstore: put %s: %w", d, err)
	}

	s.collab.ReplicateChunk(ctx, d, data)
	return nil
}

// writeAtomic writes data to a temp file inside dir, fsyncs it, and
// renames it onto final. If final already exists (a racing writer won),
// the rename either replaces it with byte-identical content or the
// temp file is simply discarded — both outcomes are safe because the
// path name is the content's digest.
func writeAtomic(dir, final string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// PutFromStream stores a chunk delivered by a peer: the full stream is
// read and buffered, then verified against hexDigest before being
// handed to PutIfMissing. Verification after the full read (not
// incrementally) matches ReadVerified's all-or-nothing integrity check.
func (s *Store) PutFromStream(ctx context.Context, hexDigest string, r io.Reader) error {
	want, err := chunkaddr.FromHex(hexDigest)
	if err != nil {
		return fmt.Errorf("chunkstore: put from stream: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(r, CHUNK_SIZE+1))
	if err != nil {
		return fmt.Errorf("chunkstore: put from stream: %w", err)
	}
	if len(data) > CHUNK_SIZE {
		return fmt.Errorf("chunkstore: put from stream: payload exceeds chunk size")
	}
	got := chunkaddr.Sum(data)
	if got != want {
		return ErrIntegrity
	}
	return s.PutIfMissing(ctx, want, data)
}

// ChunkPathFor locates a locally stored chunk for a peer-facing reader
// that streams raw chunk bytes directly off disk.
func (s *Store) ChunkPathFor(hexDigest string) (string, bool) {
	d, err := chunkaddr.FromHex(hexDigest)
	if err != nil {
		return "", false
	}
	return s.locate(d)
}
