// Package filehandle implements the per-open file handle / write
// buffer: the in-memory view of one open file, holding dirty chunk
// buffers and the manifest snapshot taken at open, used to diff
// reference counts at release.
//
// Dirty buffers are kept in a map from chunk index to an owned
// fixed-size buffer rather than a linked list of owned buffers, so
// random-access writes and lookups by index never walk a list. The map
// is unordered; Release sorts the indices before storing the chunks.
package filehandle

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/latticefs/node/internal/chunkaddr"
	"github.com/latticefs/node/internal/chunkstore"
	"github.com/latticefs/node/internal/hashsum"
	"github.com/latticefs/node/internal/manifest"
)

// CHUNK_SIZE re-exports the chunk store's fixed chunk unit so callers
// don't need to import chunkstore solely for the constant.
const CHUNK_SIZE = chunkstore.CHUNK_SIZE

// Handle is the per-open working copy of one file. It is not safe for
// concurrent use from multiple goroutines — the hosting filesystem
// runtime serializes operations on a single open.
type Handle struct {
	ID       string
	MetaPath string

	Size    int64
	Digests []chunkaddr.Digest

	OrigSize    int64
	OrigDigests []chunkaddr.Digest

	dirty    map[int][]byte
	modified bool
	released bool

	store *chunkstore.Store
}

// Create writes an empty manifest (size 0, no chunks) at metaPath and
// returns a handle whose working and original copies are both empty.
func Create(store *chunkstore.Store, metaPath string) (*Handle, error) {
	if err := manifest.SaveAtomic(metaPath, manifest.Manifest{}); err != nil {
		return nil, manifest.Coded(err)
	}
	return &Handle{
		ID:       uuid.NewString(),
		MetaPath: metaPath,
		store:    store,
		dirty:    make(map[int][]byte),
	}, nil
}

// Open loads the manifest at metaPath and returns a handle whose
// orig_size/orig_digests snapshot is a deep copy of the loaded state.
func Open(store *chunkstore.Store, metaPath string) (*Handle, error) {
	m, err := manifest.Load(metaPath)
	if err != nil {
		return nil, manifest.Coded(err)
	}
	working := m.Clone()
	orig := m.Clone()
	return &Handle{
		ID:          uuid.NewString(),
		MetaPath:    metaPath,
		store:       store,
		Size:        working.Size,
		Digests:     working.Digests,
		OrigSize:    orig.Size,
		OrigDigests: orig.Digests,
		dirty:       make(map[int][]byte),
	}, nil
}

func chunkIndex(offset int64) int   { return int(offset / CHUNK_SIZE) }
func chunkOffset(offset int64) int  { return int(offset % CHUNK_SIZE) }
func ceilDivChunks(n int64) int {
	if n <= 0 {
		return 0
	}
	return int((n + CHUNK_SIZE - 1) / CHUNK_SIZE)
}

// digestAt returns the digest recorded for chunk idx, or the zero value
// if idx is out of range or unset (a sparse slot).
func (h *Handle) digestAt(idx int) chunkaddr.Digest {
	if idx < 0 || idx >= len(h.Digests) {
		return ""
	}
	return h.Digests[idx]
}

func (h *Handle) setDigestAt(idx int, d chunkaddr.Digest) {
	if idx >= len(h.Digests) {
		grown := make([]chunkaddr.Digest, idx+1)
		copy(grown, h.Digests)
		h.Digests = grown
	}
	h.Digests[idx] = d
}

// materialize returns the dirty buffer for chunk idx, lazily
// materializing it on first modifying access: read the existing chunk
// if one is recorded, zero-fill a sparse slot otherwise, always
// padding the tail to CHUNK_SIZE.
func (h *Handle) materialize(ctx context.Context, idx int) ([]byte, error) {
	if buf, ok := h.dirty[idx]; ok {
		return buf, nil
	}
	buf := make([]byte, CHUNK_SIZE)
	if d := h.digestAt(idx); !d.Zero() {
		if _, err := h.store.ReadVerified(ctx, d, buf); err != nil {
			return nil, chunkstore.Coded(err)
		}
	}
	h.dirty[idx] = buf
	return buf, nil
}

// ReadAt reads up to len(p) bytes starting at offset, clipped to the
// handle's current working size, preferring dirty buffers over disk.
func (h *Handle) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	if offset >= h.Size {
		return 0, nil
	}
	end := offset + int64(len(p))
	if end > h.Size {
		end = h.Size
	}

	var n int
	for cur := offset; cur < end; {
		idx := chunkIndex(cur)
		off := chunkOffset(cur)
		want := int(end - cur)
		if avail := CHUNK_SIZE - off; want > avail {
			want = avail
		}

		if buf, ok := h.dirty[idx]; ok {
			copy(p[n:n+want], buf[off:off+want])
		} else if d := h.digestAt(idx); !d.Zero() {
			tmp := make([]byte, CHUNK_SIZE)
			rn, err := h.store.ReadVerified(ctx, d, tmp)
			if err != nil {
				return n, chunkstore.Coded(err)
			}
			dst := p[n : n+want]
			for i := range dst {
				dst[i] = 0
			}
			if off < rn {
				avail := rn - off
				if avail > want {
					avail = want
				}
				copy(dst[:avail], tmp[off:off+avail])
			}
		} else {
			dst := p[n : n+want]
			for i := range dst {
				dst[i] = 0
			}
		}

		n += want
		cur += int64(want)
	}
	return n, nil
}

// WriteAt copies p into the working chunk buffers starting at offset,
// materializing dirty buffers as needed, and grows the working size to
// max(size, offset+len(p)).
func (h *Handle) WriteAt(ctx context.Context, p []byte, offset int64) (int, error) {
	var n int
	for n < len(p) {
		cur := offset + int64(n)
		idx := chunkIndex(cur)
		off := chunkOffset(cur)
		want := len(p) - n
		if avail := CHUNK_SIZE - off; want > avail {
			want = avail
		}

		buf, err := h.materialize(ctx, idx)
		if err != nil {
			return n, err
		}
		copy(buf[off:off+want], p[n:n+want])
		n += want
	}

	if newSize := offset + int64(len(p)); newSize > h.Size {
		h.Size = newSize
	}
	h.modified = true
	return n, nil
}

// Truncate resizes the working file to newSize. Shrinking drops
// now-out-of-range digests and dirty
// buffers; the chunks themselves are not deleted here — their
// reference counts decrement at Release. Extending only grows Size;
// the new range reads as zero (sparse).
func (h *Handle) Truncate(newSize int64) error {
	if newSize < h.Size {
		needed := ceilDivChunks(newSize)
		for idx := range h.dirty {
			if idx >= needed {
				delete(h.dirty, idx)
			}
		}
		for i := needed; i < len(h.Digests); i++ {
			h.Digests[i] = ""
		}
		if needed < len(h.Digests) {
			h.Digests = h.Digests[:needed]
		}
	}
	h.Size = newSize
	h.modified = true
	return nil
}

// Release finalizes the handle: every dirty buffer is hashed and
// stored, the manifest is rewritten atomically if it changed, and —
// only after that succeeds — reference-count deltas between the
// original and new manifest are applied. A failure at any step before
// the manifest save leaves the manifest untouched and does not credit
// any reference count.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	defer func() {
		h.dirty = nil
		h.released = true
	}()

	if !h.modified {
		return nil
	}

	idxs := make([]int, 0, len(h.dirty))
	for idx := range h.dirty {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	for _, idx := range idxs {
		buf := h.dirty[idx]
		d := hashsum.Sum(buf)
		if err := h.store.PutIfMissing(ctx, d, buf); err != nil {
			return chunkstore.Coded(err)
		}
		h.setDigestAt(idx, d)
	}

	newManifest := manifest.Manifest{Size: h.Size, Digests: h.Digests}
	if err := manifest.SaveAtomic(h.MetaPath, newManifest); err != nil {
		return manifest.Coded(err)
	}

	oldSet := (manifest.Manifest{Digests: h.OrigDigests}).SetDigests()
	newSet := newManifest.SetDigests()
	if err := h.store.ApplyRefDeltasFromManifests(oldSet, newSet); err != nil {
		return chunkstore.Coded(err)
	}
	return nil
}
