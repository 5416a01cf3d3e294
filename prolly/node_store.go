package prolly

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/hash"
)

const DefaultCacheSize = 4096

// NodeStore reads and writes tree nodes through a chunk store, caching
// decoded nodes by hash.
type NodeStore struct {
	cs    chunks.ChunkStore
	cache *lru.Cache[hash.Hash, *Node]
}

func NewNodeStore(cs chunks.ChunkStore, cacheSize int) *NodeStore {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[hash.Hash, *Node](cacheSize)
	if err != nil {
		panic(err)
	}
	return &NodeStore{cs: cs, cache: cache}
}

func (ns *NodeStore) ChunkStore() chunks.ChunkStore {
	return ns.cs
}

func (ns *NodeStore) Read(ctx context.Context, h hash.Hash) (*Node, error) {
	if nd, ok := ns.cache.Get(h); ok {
		return nd, nil
	}
	data, err := ns.cs.Get(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to read node: %w", err)
	}
	nd, err := decodeNode(h, data)
	if err != nil {
		return nil, err
	}
	ns.cache.Add(h, nd)
	return nd, nil
}

// Purge drops every cached node. Call it after chunks were deleted from the
// store.
func (ns *NodeStore) Purge() {
	ns.cache.Purge()
}

// Write persists nd and records its hash on it.
func (ns *NodeStore) Write(ctx context.Context, nd *Node) (hash.Hash, error) {
	h, err := ns.cs.Put(ctx, encodeNode(nd))
	if err != nil {
		return hash.Hash{}, fmt.Errorf("failed to write node: %w", err)
	}
	nd.hash = h
	ns.cache.Add(h, nd)
	return h, nil
}
