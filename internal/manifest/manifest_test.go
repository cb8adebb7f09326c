package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticefs/node/internal/chunkaddr"
)

func TestSaveAtomicThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a"+Suffix)

	d0 := chunkaddr.Sum([]byte("chunk 0"))
	d2 := chunkaddr.Sum([]byte("chunk 2"))
	want := Manifest{
		Size:    2*1024*1024 + 5,
		Digests: []chunkaddr.Digest{d0, "", d2},
	}

	require.NoError(t, SaveAtomic(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want.Size, got.Size)
	require.Equal(t, want.Digests, got.Digests)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing"+Suffix))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadIgnoresUnknownLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a"+Suffix)
	content := "size 5\nfuture-field 123\nchunk 0 " + chunkaddr.Sum([]byte("x")).Hex() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Size)
	require.Len(t, got.Digests, 1)
}

func TestLoadLastChunkLineWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a"+Suffix)
	first := chunkaddr.Sum([]byte("first"))
	second := chunkaddr.Sum([]byte("second"))
	content := "size 1048576\nchunk 0 " + first.Hex() + "\nchunk 0 " + second.Hex() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, second, got.Digests[0])
}

func TestSaveAtomicOverwriteIsByteIdentical(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a"+Suffix)
	require.NoError(t, SaveAtomic(path, Manifest{Size: 5}))
	require.NoError(t, SaveAtomic(path, Manifest{Size: 5}))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Size)
}

func TestSetDigestsExcludesSparseSlots(t *testing.T) {
	t.Parallel()

	d0 := chunkaddr.Sum([]byte("0"))
	m := Manifest{Size: 3 * 1024 * 1024, Digests: []chunkaddr.Digest{d0, "", ""}}
	set := m.SetDigests()
	require.Equal(t, []chunkaddr.Digest{d0}, set)
}

