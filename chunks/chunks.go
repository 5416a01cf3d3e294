package chunks

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

// ChunkStore is a content addressed blob store.
type ChunkStore interface {
	// Get returns the bytes of chunk h. It fails with core.ErrNotFound when the
	// chunk is absent and core.ErrCorruption when the stored bytes do not hash to h.
	Get(ctx context.Context, h hash.Hash) ([]byte, error)
	Has(ctx context.Context, h hash.Hash) (bool, error)
	// Put stores data durably and returns its hash. Writing bytes that are
	// already present is a no-op.
	Put(ctx context.Context, data []byte) (hash.Hash, error)
	Stats() Stats
	Close() error
}

// Sweeper is implemented by stores whose chunks can be listed and removed.
type Sweeper interface {
	Hashes(ctx context.Context, fn func(hash.Hash) error) error
	Delete(ctx context.Context, h hash.Hash) error
}

type Stats struct {
	Reads   uint64
	Writes  uint64
	Dedups  uint64
	Deletes uint64
}

type counters struct {
	reads   atomic.Uint64
	writes  atomic.Uint64
	dedups  atomic.Uint64
	deletes atomic.Uint64
}

func (c *counters) Stats() Stats {
	return Stats{
		Reads:   c.reads.Load(),
		Writes:  c.writes.Load(),
		Dedups:  c.dedups.Load(),
		Deletes: c.deletes.Load(),
	}
}

// Kind is the first byte of every encoded chunk.
type Kind byte

const (
	KindNode   Kind = 'n'
	KindCommit Kind = 'c'
	KindRoot   Kind = 'r'
	KindTable  Kind = 't'
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindCommit:
		return "commit"
	case KindRoot:
		return "root"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// KindOf returns the kind tag of an encoded chunk.
func KindOf(data []byte) Kind {
	if len(data) == 0 {
		return 0
	}
	return Kind(data[0])
}

func notFound(h hash.Hash) error {
	return fmt.Errorf("chunk %s: %w", h, core.ErrNotFound)
}

func verify(h hash.Hash, data []byte) error {
	if actual := hash.Of(data); actual != h {
		return fmt.Errorf("chunk %s: content hashes to %s: %w", h, actual, core.ErrCorruption)
	}
	return nil
}
