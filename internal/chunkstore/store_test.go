package chunkstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/latticefs/node/internal/chunkaddr"
	"github.com/latticefs/node/internal/mesh"
)

func newTestStore(t *testing.T, roots ...string) *Store {
	t.Helper()
	if len(roots) == 0 {
		roots = []string{t.TempDir()}
	}
	s, err := New(roots, 0, mesh.NullCollaborator{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestPutIfMissingThenReadVerified(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	data := bytes.Repeat([]byte{0xAA}, CHUNK_SIZE)
	d := chunkaddr.Sum(data)

	if err := s.PutIfMissing(context.Background(), d, data); err != nil {
		t.Fatalf("PutIfMissing() error = %v", err)
	}

	out := make([]byte, CHUNK_SIZE)
	n, err := s.ReadVerified(context.Background(), d, out)
	if err != nil {
		t.Fatalf("ReadVerified() error = %v", err)
	}
	if n != CHUNK_SIZE || !bytes.Equal(out[:n], data) {
		t.Fatalf("ReadVerified() returned wrong bytes")
	}
}

func TestPutIfMissingDeduplicates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := newTestStore(t, root)
	data := []byte("dedup me")
	d := chunkaddr.Sum(data)

	if err := s.PutIfMissing(context.Background(), d, data); err != nil {
		t.Fatalf("first PutIfMissing() error = %v", err)
	}
	if err := s.PutIfMissing(context.Background(), d, data); err != nil {
		t.Fatalf("second PutIfMissing() error = %v", err)
	}

	path := chunkPath(root, d.Hex())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected chunk file at %s: %v", path, err)
	}
}

func TestReadVerifiedDetectsCorruption(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := newTestStore(t, root)
	data := []byte("original content")
	d := chunkaddr.Sum(data)

	if err := s.PutIfMissing(context.Background(), d, data); err != nil {
		t.Fatalf("PutIfMissing() error = %v", err)
	}

	path := chunkPath(root, d.Hex())
	if err := os.WriteFile(path, []byte("tampered content!"), filePerm); err != nil {
		t.Fatalf("tamper write error = %v", err)
	}

	out := make([]byte, CHUNK_SIZE)
	if _, err := s.ReadVerified(context.Background(), d, out); err == nil {
		t.Fatal("ReadVerified() error = nil, want integrity failure")
	}
}

func TestReadVerifiedNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	d := chunkaddr.Sum([]byte("never stored"))

	out := make([]byte, CHUNK_SIZE)
	_, err := s.ReadVerified(context.Background(), d, out)
	if err != ErrNotFound {
		t.Fatalf("ReadVerified() error = %v, want ErrNotFound", err)
	}
}

func TestQuotaExceeded(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := New([]string{root}, 10, mesh.NullCollaborator{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := bytes.Repeat([]byte{1}, 20)
	d := chunkaddr.Sum(data)
	if err := s.PutIfMissing(context.Background(), d, data); err != ErrQuotaExceeded {
		t.Fatalf("PutIfMissing() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestRoundRobinRoots(t *testing.T) {
	t.Parallel()

	rootA, rootB := t.TempDir(), t.TempDir()
	s := newTestStore(t, rootA, rootB)

	var placedInA, placedInB int
	for i := 0; i < 4; i++ {
		data := []byte{byte(i), byte(i + 1)}
		d := chunkaddr.Sum(data)
		if err := s.PutIfMissing(context.Background(), d, data); err != nil {
			t.Fatalf("PutIfMissing() error = %v", err)
		}
		if _, err := os.Stat(chunkPath(rootA, d.Hex())); err == nil {
			placedInA++
		}
		if _, err := os.Stat(chunkPath(rootB, d.Hex())); err == nil {
			placedInB++
		}
	}
	if placedInA == 0 || placedInB == 0 {
		t.Fatalf("round robin did not stripe across roots: A=%d B=%d", placedInA, placedInB)
	}
}

func TestUsageSumsAcrossRoots(t *testing.T) {
	t.Parallel()

	rootA, rootB := t.TempDir(), t.TempDir()
	s := newTestStore(t, rootA, rootB)

	total := 0
	for i := 0; i < 6; i++ {
		data := bytes.Repeat([]byte{byte(i)}, 100+i)
		total += len(data)
		if err := s.PutIfMissing(context.Background(), chunkaddr.Sum(data), data); err != nil {
			t.Fatalf("PutIfMissing() error = %v", err)
		}
	}

	usage, err := s.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage != int64(total) {
		t.Fatalf("Usage() = %d, want %d", usage, total)
	}
}

func TestPutFromStreamVerifiesDigest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	data := []byte("streamed payload")
	d := chunkaddr.Sum(data)

	if err := s.PutFromStream(context.Background(), d.Hex(), bytes.NewReader(data)); err != nil {
		t.Fatalf("PutFromStream() error = %v", err)
	}

	wrongHex := chunkaddr.Sum([]byte("something else")).Hex()
	if err := s.PutFromStream(context.Background(), wrongHex, bytes.NewReader(data)); err != ErrIntegrity {
		t.Fatalf("PutFromStream() error = %v, want ErrIntegrity", err)
	}
}

func TestChunkPathFor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := newTestStore(t, root)
	data := []byte("locate me")
	d := chunkaddr.Sum(data)

	if _, ok := s.ChunkPathFor(d.Hex()); ok {
		t.Fatal("ChunkPathFor() found an unstored chunk")
	}
	if err := s.PutIfMissing(context.Background(), d, data); err != nil {
		t.Fatalf("PutIfMissing() error = %v", err)
	}
	path, ok := s.ChunkPathFor(d.Hex())
	if !ok {
		t.Fatal("ChunkPathFor() ok = false, want true")
	}
	if filepath.Dir(filepath.Dir(path)) != filepath.Join(root, internalDir, "chunks/sha256") {
		t.Fatalf("ChunkPathFor() = %s, unexpected shard layout", path)
	}
}
