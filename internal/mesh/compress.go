package mesh

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/latticefs/node/internal/chunkaddr"
)

// Compressing wraps a Collaborator so that chunk payloads crossing the
// mesh boundary are zstd-compressed on replication and transparently
// decompressed on fetch. The wire transport underneath Next never sees
// raw chunk bytes — only compressed frames.
type Compressing struct {
	Next Collaborator

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCompressing builds a Compressing collaborator around next. The
// returned value owns its own encoder/decoder pair and must not be
// copied after first use.
func NewCompressing(next Collaborator) (*Compressing, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("mesh: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("mesh: new zstd decoder: %w", err)
	}
	return &Compressing{Next: next, enc: enc, dec: dec}, nil
}

// Close releases the underlying zstd encoder/decoder goroutines.
func (c *Compressing) Close() {
	c.enc.Close()
	c.dec.Close()
}

func (c *Compressing) FetchChunk(ctx context.Context, d chunkaddr.Digest) ([]byte, error) {
	frame, err := c.Next.FetchChunk(ctx, d)
	if err != nil || frame == nil {
		return frame, err
	}
	data, err := c.dec.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("mesh: decompress chunk %s: %w", d, err)
	}
	return data, nil
}

func (c *Compressing) ReplicateChunk(ctx context.Context, d chunkaddr.Digest, data []byte) {
	frame := c.enc.EncodeAll(data, nil)
	c.Next.ReplicateChunk(ctx, d, frame)
}
