package fsadapter

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/node/internal/chunkstore"
	"github.com/latticefs/node/internal/code"
	"github.com/latticefs/node/internal/filehandle"
	"github.com/latticefs/node/internal/manifest"
)

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Lookup resolves one path component under n. A child is a directory
// if a real backing directory exists for it, a file if a manifest
// sidecar exists, and ENOENT otherwise — manifest existence is the
// sole source of truth for file presence.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := validateComponent(name); errno != 0 {
		return nil, errno
	}
	childRel := join(n.relPath(), name)

	if info, err := os.Stat(filepath.Join(n.adapter.BackingRoot, childRel)); err == nil && info.IsDir() {
		child := &Node{adapter: n.adapter, isDir: true}
		out.Attr = dirAttr()
		return n.NewInode(ctx, child, childAttr(dirMode, childRel)), 0
	}

	metaPath := manifest.PathFor(n.adapter.BackingRoot, childRel)
	if !manifest.Exists(metaPath) {
		return nil, errnoOf(code.NotFound)
	}
	m, err := manifest.Load(metaPath)
	if err != nil {
		return nil, errnoFromErr(manifest.Coded(err))
	}
	child := &Node{adapter: n.adapter, isDir: false}
	out.Attr = fileAttr(m.Size)
	return n.NewInode(ctx, child, childAttr(fileMode, childRel)), 0
}

// Getattr reports size from the manifest for a file (preferring an
// open handle's working size over the on-disk manifest), or directory
// attributes passed through from the backing directory.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if n.isDir {
		var st syscall.Stat_t
		if err := syscall.Stat(n.backingPath(), &st); err != nil {
			return fs.ToErrno(err)
		}
		out.FromStat(&st)
		out.Ino = n.StableAttr().Ino
		return 0
	}
	if fh, ok := f.(*fileHandle); ok && fh != nil {
		out.Attr = fileAttr(fh.handle.Size)
		return 0
	}
	m, err := manifest.Load(n.manifestPath())
	if err != nil {
		return errnoFromErr(manifest.Coded(err))
	}
	out.Attr = fileAttr(m.Size)
	return 0
}

// Readdir lists the backing directory, hiding the internal tree and
// presenting manifest sidecars under their logical (suffix-stripped)
// names.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := os.ReadDir(n.backingPath())
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	var out []fuse.DirEntry
	for _, e := range entries {
		name := e.Name()
		if name == internalDirName {
			continue
		}
		if e.IsDir() {
			out = append(out, fuse.DirEntry{Name: name, Mode: dirMode, Ino: stableIno(join(n.relPath(), name))})
			continue
		}
		logical, ok := stripManifestSuffix(name)
		if !ok {
			continue
		}
		out = append(out, fuse.DirEntry{Name: logical, Mode: fileMode, Ino: stableIno(join(n.relPath(), logical))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return fs.NewListDirStream(out), 0
}

func stripManifestSuffix(name string) (string, bool) {
	suf := manifest.Suffix
	if len(name) <= len(suf) || name[len(name)-len(suf):] != suf {
		return "", false
	}
	return name[:len(name)-len(suf)], true
}

// Mkdir creates a real backing directory, parents included.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := validateComponent(name); errno != 0 {
		return nil, errno
	}
	childRel := join(n.relPath(), name)
	if err := os.MkdirAll(filepath.Join(n.adapter.BackingRoot, childRel), 0o755); err != nil {
		return nil, fs.ToErrno(err)
	}
	out.Attr = dirAttr()
	child := &Node{adapter: n.adapter, isDir: true}
	return n.NewInode(ctx, child, childAttr(dirMode, childRel)), 0
}

// Rmdir passes through to the backing directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if errno := validateComponent(name); errno != 0 {
		return errno
	}
	childRel := join(n.relPath(), name)
	if err := os.Remove(filepath.Join(n.adapter.BackingRoot, childRel)); err != nil {
		return fs.ToErrno(err)
	}
	return 0
}

// Unlink releases the file's chunk references and removes its
// manifest. A missing manifest is reported as NotFound.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if errno := validateComponent(name); errno != 0 {
		return errno
	}
	childRel := join(n.relPath(), name)
	metaPath := manifest.PathFor(n.adapter.BackingRoot, childRel)
	if !manifest.Exists(metaPath) {
		return errnoOf(code.NotFound)
	}
	m, err := manifest.Load(metaPath)
	if err != nil {
		return errnoFromErr(manifest.Coded(err))
	}
	if err := n.adapter.Store.ApplyRefDeltasFromManifests(m.SetDigests(), nil); err != nil {
		return errnoFromErr(chunkstore.Coded(err))
	}
	if err := manifest.Delete(metaPath); err != nil {
		return errnoFromErr(manifest.Coded(err))
	}
	return 0
}

// Rename moves a directory entry directly, or moves a file's manifest
// sidecar. If a manifest already exists at the destination, its chunk
// references are released first (unlink-then-rename) so no refcount is
// leaked.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if errno := validateComponent(name); errno != 0 {
		return errno
	}
	if errno := validateComponent(newName); errno != 0 {
		return errno
	}
	destNode, ok := newParent.(*Node)
	if !ok {
		return errnoOf(code.InvalidState)
	}

	srcRel := join(n.relPath(), name)
	dstRel := join(destNode.relPath(), newName)
	srcBacking := filepath.Join(n.adapter.BackingRoot, srcRel)

	if info, err := os.Stat(srcBacking); err == nil && info.IsDir() {
		if err := os.Rename(srcBacking, filepath.Join(n.adapter.BackingRoot, dstRel)); err != nil {
			return fs.ToErrno(err)
		}
		return 0
	}

	srcMeta := manifest.PathFor(n.adapter.BackingRoot, srcRel)
	dstMeta := manifest.PathFor(n.adapter.BackingRoot, dstRel)
	if manifest.Exists(dstMeta) {
		existing, err := manifest.Load(dstMeta)
		if err != nil {
			return errnoFromErr(manifest.Coded(err))
		}
		if err := n.adapter.Store.ApplyRefDeltasFromManifests(existing.SetDigests(), nil); err != nil {
			return errnoFromErr(chunkstore.Coded(err))
		}
		if err := manifest.Delete(dstMeta); err != nil {
			return errnoFromErr(manifest.Coded(err))
		}
	}
	if err := manifest.Rename(srcMeta, dstMeta); err != nil {
		return errnoFromErr(manifest.Coded(err))
	}
	return 0
}

// Statfs reports block usage against the configured quota when one is
// set, or passes through the backing filesystem's own statistics.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	quota := n.adapter.Store.Quota()
	if quota <= 0 {
		var st syscall.Statfs_t
		if err := syscall.Statfs(n.adapter.BackingRoot, &st); err != nil {
			return fs.ToErrno(err)
		}
		out.Blocks = st.Blocks
		out.Bfree = st.Bfree
		out.Bavail = st.Bavail
		out.Bsize = uint32(st.Bsize)
		return 0
	}
	usage, err := n.adapter.Store.Usage()
	if err != nil {
		return errnoFromErr(chunkstore.Coded(err))
	}
	free := quota - usage
	if free < 0 {
		free = 0
	}
	out.Bsize = blockSize
	out.Blocks = uint64(quota) / blockSize
	out.Bfree = uint64(free) / blockSize
	out.Bavail = out.Bfree
	return 0
}

// Create writes an empty manifest for name and opens a handle onto it.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if errno := validateComponent(name); errno != 0 {
		return nil, nil, 0, errno
	}
	childRel := join(n.relPath(), name)
	metaPath := manifest.PathFor(n.adapter.BackingRoot, childRel)

	h, err := filehandle.Create(n.adapter.Store, metaPath)
	if err != nil {
		return nil, nil, 0, errnoFromErr(manifest.Coded(err))
	}

	out.Attr = fileAttr(0)
	child := &Node{adapter: n.adapter, isDir: false}
	inode := n.NewInode(ctx, child, childAttr(fileMode, childRel))
	return inode, &fileHandle{handle: h}, 0, 0
}

// Open loads the manifest and returns a handle snapshotting it.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	h, err := filehandle.Open(n.adapter.Store, n.manifestPath())
	if err != nil {
		return nil, 0, errnoFromErr(manifest.Coded(err))
	}
	return &fileHandle{handle: h}, 0, 0
}

// Setattr handles truncate (the only attribute this adapter accepts
// changes to). It requires an open handle; without one it reports
// PermissionDenied (EACCES), not InvalidState.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	size, ok := in.GetSize()
	if !ok {
		if fh, ok := f.(*fileHandle); ok && fh != nil {
			out.Attr = fileAttr(fh.handle.Size)
		} else {
			out.Attr = fileAttr(0)
		}
		return 0
	}
	fh, ok := f.(*fileHandle)
	if !ok || fh == nil {
		return errnoOf(code.PermissionDenied)
	}
	if err := fh.handle.Truncate(int64(size)); err != nil {
		return errnoFromErr(err)
	}
	out.Attr = fileAttr(fh.handle.Size)
	return 0
}

func dirAttr() fuse.Attr {
	now := uint64(time.Now().Unix())
	return fuse.Attr{
		Mode:  dirMode,
		Atime: now, Mtime: now, Ctime: now,
	}
}

func fileAttr(size int64) fuse.Attr {
	now := uint64(time.Now().Unix())
	return fuse.Attr{
		Mode:    fileMode,
		Size:    uint64(size),
		Blksize: chunkstore.CHUNK_SIZE,
		Blocks:  (uint64(size) + 511) / 512,
		Atime:   now, Mtime: now, Ctime: now,
	}
}
