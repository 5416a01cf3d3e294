package prolly

import (
	"bytes"
	"context"
	"io"

	"github.com/nickyhof/TreeDB/hash"
)

// Map is an immutable ordered map from byte keys to byte values. Keys compare
// with bytes.Compare.
type Map struct {
	root *Node
	ns   *NodeStore
}

// NewEmptyMap returns an empty map and persists its root.
func NewEmptyMap(ctx context.Context, ns *NodeStore) (Map, error) {
	root := makeNode(0, nil)
	if _, err := ns.Write(ctx, root); err != nil {
		return Map{}, err
	}
	return Map{root: root, ns: ns}, nil
}

// NewMapFromRoot loads the map whose root node is h.
func NewMapFromRoot(ctx context.Context, ns *NodeStore, h hash.Hash) (Map, error) {
	root, err := ns.Read(ctx, h)
	if err != nil {
		return Map{}, err
	}
	return Map{root: root, ns: ns}, nil
}

func (m Map) HashOf() hash.Hash {
	return m.root.hash
}

// Count returns the number of entries.
func (m Map) Count() uint64 {
	return m.root.total
}

func (m Map) Height() int {
	return m.root.level + 1
}

func (m Map) NodeStore() *NodeStore {
	return m.ns
}

func (m Map) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	cur, err := seekLevel(ctx, m.ns, m.root, 0, key)
	if err != nil {
		return nil, false, err
	}
	i := cur.nd.search(key)
	if i < cur.nd.Count() && bytes.Equal(cur.nd.keys[i], key) {
		return cur.nd.values[i], true, nil
	}
	return nil, false, nil
}

func (m Map) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// IterAll iterates every entry in key order.
func (m Map) IterAll(ctx context.Context) (*MapIter, error) {
	return m.IterRange(ctx, nil, nil)
}

// IterRange iterates entries with start <= key < end. A nil bound is open.
func (m Map) IterRange(ctx context.Context, start, end []byte) (*MapIter, error) {
	if m.root.Empty() {
		return &MapIter{done: true}, nil
	}
	cur, err := seekLevel(ctx, m.ns, m.root, 0, start)
	if err != nil {
		return nil, err
	}
	if start != nil {
		cur.idx = cur.nd.search(start)
	}
	return &MapIter{cur: cur, end: end}, nil
}

// MapIter walks a snapshot of a map. Concurrent edits produce new maps and
// never affect an iterator in progress.
type MapIter struct {
	cur  *cursor
	end  []byte
	done bool
}

// Next returns the next entry or io.EOF when the range is exhausted.
func (it *MapIter) Next(ctx context.Context) (key, value []byte, err error) {
	if it.done {
		return nil, nil, io.EOF
	}
	for it.cur.idx >= it.cur.nd.Count() {
		if err := it.cur.nextNode(ctx); err != nil {
			it.done = true
			if err == io.EOF {
				return nil, nil, io.EOF
			}
			return nil, nil, err
		}
	}
	key = it.cur.nd.keys[it.cur.idx]
	if it.end != nil && bytes.Compare(key, it.end) >= 0 {
		it.done = true
		return nil, nil, io.EOF
	}
	value = it.cur.nd.values[it.cur.idx]
	it.cur.idx++
	return key, value, nil
}
