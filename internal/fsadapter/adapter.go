// Package fsadapter translates FUSE requests into manifest and
// chunk-store operations: it is the outermost boundary where user
// paths are validated, internal artifacts (the INTERNAL tree and
// manifest sidecars) are hidden from directory listings, and every
// internal error is mapped to the POSIX errno the kernel expects.
package fsadapter

import (
	"hash/fnv"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/node/internal/chunkstore"
	"github.com/latticefs/node/internal/code"
	"github.com/latticefs/node/internal/manifest"
)

const (
	internalDirName = "INTERNAL"
	dirMode         = fuse.S_IFDIR | 0o755
	fileMode        = fuse.S_IFREG | 0o644
	blockSize       = 4096
)

// Adapter holds the state shared by every node in the mounted tree: the
// backing directory where manifests and physical subdirectories live,
// and the chunk store they reference.
type Adapter struct {
	BackingRoot string
	Store       *chunkstore.Store
}

// Root returns the root node of the mounted tree, ready to pass to
// fs.Mount.
func (a *Adapter) Root() fs.InodeEmbedder {
	return &Node{adapter: a, isDir: true}
}

// Node is one directory or file entry in the mounted tree. Its location
// is derived from the inode's position in the kernel's dentry tree
// (fs.Inode.Path), not stored directly — matching the loopback-style
// node used throughout go-fuse's own examples.
type Node struct {
	fs.Inode
	adapter *Adapter
	isDir   bool
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
)

// relPath returns n's path relative to the mount root ("" for the root
// itself), the form every chunk-store/manifest helper expects.
func (n *Node) relPath() string {
	return n.Path(nil)
}

// backingPath returns the absolute on-disk path backing n: a real
// directory for a directory node, or the bare (sidecar-less) user path
// for a file node — manifestPath returns the sidecar path instead.
func (n *Node) backingPath() string {
	return filepath.Join(n.adapter.BackingRoot, n.relPath())
}

func (n *Node) manifestPath() string {
	return manifest.PathFor(n.adapter.BackingRoot, n.relPath())
}

// validateComponent enforces the reserved-name rule: no component may
// be ".", "..", the internal directory name, or contain the manifest
// suffix — checked before any backing path is built from user input.
func validateComponent(name string) syscall.Errno {
	if name == "." || name == ".." || name == internalDirName {
		return errnoOf(code.InvalidPath)
	}
	if strings.Contains(name, manifest.Suffix) {
		return errnoOf(code.InvalidPath)
	}
	return 0
}

// errnoOf maps a taxonomy kind directly to its errno, for adapter-local
// conditions (path safety, missing handle) that never touch a deeper
// package's sentinel errors.
func errnoOf(k code.Kind) syscall.Errno {
	return k.Errno()
}

// errnoFromErr unwraps any internal error into the errno the kernel
// should see, via the shared code.Kind classification.
func errnoFromErr(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return code.KindOf(err).Errno()
}

// stableIno derives a deterministic, path-based inode number so the
// same logical file maps to the same inode across repeated lookups,
// without needing to persist an allocation table.
func stableIno(relPath string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(relPath))
	return h.Sum64()
}

func childAttr(mode uint32, relPath string) fs.StableAttr {
	return fs.StableAttr{Mode: mode, Ino: stableIno(relPath)}
}
