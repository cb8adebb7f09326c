// Package mesh defines the minimal contract the chunk store needs from
// the surrounding peer mesh: fetching a chunk this node doesn't have
// locally, and best-effort replicating one it just stored. Everything
// else about mesh membership, transport, and peer discovery stays
// outside this boundary — this package only types the two calls the
// core is allowed to make across it.
package mesh

import (
	"context"
	"log/slog"

	"github.com/latticefs/node/internal/chunkaddr"
)

// Collaborator is the contract the chunk store consumes from the mesh
// layer. Both calls may block on network I/O; neither is called while
// the chunk store holds a refcount lock.
type Collaborator interface {
	// FetchChunk best-effort retrieves a chunk by digest from a peer.
	// A nil, nil return means no peer had it. The caller MUST verify
	// any returned bytes against digest before trusting them.
	FetchChunk(ctx context.Context, d chunkaddr.Digest) ([]byte, error)

	// ReplicateChunk is fire-and-forget: the core calls it after a
	// successful local store and does not propagate its failure to
	// the originating filesystem request.
	ReplicateChunk(ctx context.Context, d chunkaddr.Digest, data []byte)
}

// NullCollaborator is the default Collaborator when no mesh is
// configured: every chunk fetch misses, every replication is a no-op.
type NullCollaborator struct{}

func (NullCollaborator) FetchChunk(context.Context, chunkaddr.Digest) ([]byte, error) {
	return nil, nil
}

func (NullCollaborator) ReplicateChunk(context.Context, chunkaddr.Digest, []byte) {}

// Logging wraps a Collaborator so that fetch failures are recorded at
// debug level and then returned to the caller unchanged; the chunk
// store only fetches a chunk that no local root holds, so such a
// failure fails that read. ReplicateChunk reports no failure and is
// forwarded as is.
type Logging struct {
	Next   Collaborator
	Logger *slog.Logger
}

func (l Logging) FetchChunk(ctx context.Context, d chunkaddr.Digest) ([]byte, error) {
	data, err := l.Next.FetchChunk(ctx, d)
	if err != nil {
		l.Logger.Debug("mesh fetch failed", "digest", d, "error", err)
	}
	return data, err
}

func (l Logging) ReplicateChunk(ctx context.Context, d chunkaddr.Digest, data []byte) {
	l.Next.ReplicateChunk(ctx, d, data)
}
