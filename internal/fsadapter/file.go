package fsadapter

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/node/internal/filehandle"
)

// fileHandle adapts a filehandle.Handle to the fs.FileHandle family of
// interfaces the kernel round-trips on every read/write/release for an
// open file descriptor.
type fileHandle struct {
	handle *filehandle.Handle
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

func (f *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := f.handle.ReadAt(ctx, dest, off)
	if err != nil {
		return nil, errnoFromErr(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (f *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := f.handle.WriteAt(ctx, data, off)
	if err != nil {
		return 0, errnoFromErr(err)
	}
	return uint32(n), 0
}

func (f *fileHandle) Release(ctx context.Context) syscall.Errno {
	return errnoFromErr(f.handle.Release(ctx))
}
