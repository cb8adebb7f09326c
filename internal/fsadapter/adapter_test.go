package fsadapter

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/latticefs/node/internal/chunkstore"
	"github.com/latticefs/node/internal/manifest"
	"github.com/latticefs/node/internal/mesh"
)

// newTestAdapter wires an Adapter whose root node is already attached to
// a live inode tree, the way fs.Mount would attach it, without actually
// mounting FUSE (unavailable in this environment).
func newTestAdapter(t *testing.T) (*Adapter, *Node) {
	t.Helper()
	store, err := chunkstore.New([]string{t.TempDir()}, 0, mesh.NullCollaborator{})
	require.NoError(t, err)

	a := &Adapter{BackingRoot: t.TempDir(), Store: store}
	root := a.Root().(*Node)
	fs.NewNodeFS(root, &fs.Options{}) // attaches root's embedded fs.Inode, as fs.Mount would
	return a, root
}

func TestCreateWriteReleaseOpenReadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, root := newTestAdapter(t)

	var entryOut fuse.EntryOut
	inode, fh, _, errno := root.Create(ctx, "hello.txt", 0, 0o644, &entryOut)
	require.Equal(t, syscall.Errno(0), errno)
	f := fh.(*fileHandle)

	n, errno := f.Write(ctx, []byte("hello world"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, uint32(11), n)
	require.Equal(t, syscall.Errno(0), f.Release(ctx))

	root.AddChild("hello.txt", inode, false) // as the kernel bridge does after Create
	fh2, _, errno := inode.Operations().(*Node).Open(ctx, 0)
	require.Equal(t, syscall.Errno(0), errno)
	f2 := fh2.(*fileHandle)

	buf := make([]byte, 32)
	res, errno := f2.Read(ctx, buf, 0)
	require.Equal(t, syscall.Errno(0), errno)
	data, status := res.Bytes(buf)
	require.Equal(t, fuse.OK, status)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, syscall.Errno(0), f2.Release(ctx))
}

func TestLookupRejectsReservedNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, root := newTestAdapter(t)

	for _, name := range []string{".", "..", "INTERNAL"} {
		var out fuse.EntryOut
		_, errno := root.Lookup(ctx, name, &out)
		require.NotEqual(t, syscall.Errno(0), errno, "name %q should be rejected", name)
	}
}

func TestLookupMissingReturnsENOENT(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, root := newTestAdapter(t)

	var out fuse.EntryOut
	_, errno := root.Lookup(ctx, "nope.txt", &out)
	require.Equal(t, syscall.ENOENT, errno)
}

func TestReaddirHidesInternalAndStripsManifestSuffix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, root := newTestAdapter(t)

	var entryOut fuse.EntryOut
	_, fh, _, errno := root.Create(ctx, "visible.txt", 0, 0o644, &entryOut)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, syscall.Errno(0), fh.(*fileHandle).Release(ctx))

	require.NoError(t, os.MkdirAll(filepath.Join(a.BackingRoot, internalDirName), 0o755))

	stream, errno := root.Readdir(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	defer stream.Close()

	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		names = append(names, e.Name)
	}
	require.Contains(t, names, "visible.txt")
	require.NotContains(t, names, internalDirName)
}

func TestUnlinkReleasesChunksAndRemovesManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, root := newTestAdapter(t)

	var entryOut fuse.EntryOut
	_, fh, _, errno := root.Create(ctx, "gone.txt", 0, 0o644, &entryOut)
	require.Equal(t, syscall.Errno(0), errno)
	f := fh.(*fileHandle)
	_, errno = f.Write(ctx, []byte("payload"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, syscall.Errno(0), f.Release(ctx))

	require.True(t, manifest.Exists(manifest.PathFor(a.BackingRoot, "gone.txt")))

	require.Equal(t, syscall.Errno(0), root.Unlink(ctx, "gone.txt"))
	require.False(t, manifest.Exists(manifest.PathFor(a.BackingRoot, "gone.txt")))

	require.NotEqual(t, syscall.Errno(0), root.Unlink(ctx, "gone.txt"))
}

func TestRenameOntoExistingDestinationReleasesOldChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, root := newTestAdapter(t)

	var outA, outB fuse.EntryOut
	_, fhA, _, errno := root.Create(ctx, "a.txt", 0, 0o644, &outA)
	require.Equal(t, syscall.Errno(0), errno)
	_, errno = fhA.(*fileHandle).Write(ctx, []byte("source content"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, syscall.Errno(0), fhA.(*fileHandle).Release(ctx))

	_, fhB, _, errno := root.Create(ctx, "b.txt", 0, 0o644, &outB)
	require.Equal(t, syscall.Errno(0), errno)
	_, errno = fhB.(*fileHandle).Write(ctx, []byte("destination content, different length"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, syscall.Errno(0), fhB.(*fileHandle).Release(ctx))

	require.Equal(t, syscall.Errno(0), root.Rename(ctx, "a.txt", root, "b.txt", 0))

	require.False(t, manifest.Exists(manifest.PathFor(a.BackingRoot, "a.txt")))
	m, err := manifest.Load(manifest.PathFor(a.BackingRoot, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, int64(len("source content")), m.Size)
}

func TestSetattrTruncateRequiresHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, root := newTestAdapter(t)

	var entryOut fuse.EntryOut
	_, fh, _, errno := root.Create(ctx, "trunc.txt", 0, 0o644, &entryOut)
	require.Equal(t, syscall.Errno(0), errno)
	f := fh.(*fileHandle)
	_, errno = f.Write(ctx, []byte("0123456789"), 0)
	require.Equal(t, syscall.Errno(0), errno)

	var in fuse.SetAttrIn
	in.Valid = fuse.FATTR_SIZE
	in.Size = 4
	var out fuse.AttrOut

	require.Equal(t, syscall.Errno(0), root.Setattr(ctx, f, &in, &out))
	require.Equal(t, uint64(4), out.Attr.Size)

	require.Equal(t, syscall.EACCES, root.Setattr(ctx, nil, &in, &out))
	require.Equal(t, syscall.Errno(0), f.Release(ctx))
}

func TestStatfsWithoutQuotaPassesThroughBackingFilesystem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, root := newTestAdapter(t)

	var out fuse.StatfsOut
	require.Equal(t, syscall.Errno(0), root.Statfs(ctx, &out))
	require.Greater(t, out.Blocks, uint64(0))
}
