package prolly

import (
	"context"
	"io"
)

// cursor points at an item of a node and remembers the path from the root.
// The parent's idx always points at the child the cursor is in.
type cursor struct {
	nd     *Node
	idx    int
	parent *cursor
	ns     *NodeStore
}

// seekLevel descends from root to the node at level that may hold key.
func seekLevel(ctx context.Context, ns *NodeStore, root *Node, level int, key []byte) (*cursor, error) {
	cur := &cursor{nd: root, ns: ns}
	for cur.nd.level > level {
		if key == nil {
			cur.idx = 0
		} else {
			cur.idx = cur.nd.childIndex(key)
		}
		child, err := ns.Read(ctx, cur.nd.refs[cur.idx])
		if err != nil {
			return nil, err
		}
		cur = &cursor{nd: child, parent: cur, ns: ns}
	}
	return cur, nil
}

// lastAtLevel reports whether no node follows this one at its level.
func (c *cursor) lastAtLevel() bool {
	for p := c.parent; p != nil; p = p.parent {
		if p.idx < p.nd.Count()-1 {
			return false
		}
	}
	return true
}

// nextNode moves the cursor to the following node at the same level. It
// returns io.EOF when there is none.
func (c *cursor) nextNode(ctx context.Context) error {
	p := c.parent
	if p == nil {
		return io.EOF
	}
	if p.idx+1 < p.nd.Count() {
		p.idx++
	} else {
		if err := p.nextNode(ctx); err != nil {
			return err
		}
		p.idx = 0
	}
	nd, err := c.ns.Read(ctx, p.nd.refs[p.idx])
	if err != nil {
		return err
	}
	c.nd = nd
	c.idx = 0
	return nil
}
