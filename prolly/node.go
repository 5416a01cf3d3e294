package prolly

import (
	"bytes"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

const (
	fieldLevel protowire.Number = 1
	fieldKey   protowire.Number = 2
	fieldValue protowire.Number = 3
	fieldRef   protowire.Number = 4
	fieldCount protowire.Number = 5
)

// Node is an immutable tree node. Leaves (level 0) pair keys with values;
// internal nodes pair each child's last key with the child's hash and the
// number of rows below it.
type Node struct {
	level  int
	keys   [][]byte
	values [][]byte
	refs   []hash.Hash
	counts []uint64
	total  uint64
	hash   hash.Hash
}

// item is one entry of a node being built.
type item struct {
	key   []byte
	value []byte
	ref   hash.Hash
	count uint64
}

func (nd *Node) Level() int {
	return nd.level
}

func (nd *Node) IsLeaf() bool {
	return nd.level == 0
}

// Count returns the number of items in this node.
func (nd *Node) Count() int {
	return len(nd.keys)
}

// TreeCount returns the number of rows in the subtree rooted at this node.
func (nd *Node) TreeCount() uint64 {
	return nd.total
}

func (nd *Node) Hash() hash.Hash {
	return nd.hash
}

func (nd *Node) Empty() bool {
	return len(nd.keys) == 0
}

func (nd *Node) lastKey() []byte {
	if len(nd.keys) == 0 {
		return nil
	}
	return nd.keys[len(nd.keys)-1]
}

func (nd *Node) item(i int) item {
	if nd.level == 0 {
		return item{key: nd.keys[i], value: nd.values[i], count: 1}
	}
	return item{key: nd.keys[i], ref: nd.refs[i], count: nd.counts[i]}
}

func (nd *Node) items() []item {
	out := make([]item, len(nd.keys))
	for i := range nd.keys {
		out[i] = nd.item(i)
	}
	return out
}

// search returns the index of the first key >= key, or Count() if none.
func (nd *Node) search(key []byte) int {
	return sort.Search(len(nd.keys), func(i int) bool {
		return bytes.Compare(nd.keys[i], key) >= 0
	})
}

// childIndex returns the child whose subtree may hold key.
func (nd *Node) childIndex(key []byte) int {
	i := nd.search(key)
	if i == len(nd.keys) && i > 0 {
		i--
	}
	return i
}

func makeNode(level int, items []item) *Node {
	nd := &Node{
		level: level,
		keys:  make([][]byte, len(items)),
	}
	if level == 0 {
		nd.values = make([][]byte, len(items))
	} else {
		nd.refs = make([]hash.Hash, len(items))
		nd.counts = make([]uint64, len(items))
	}
	for i, it := range items {
		nd.keys[i] = it.key
		if level == 0 {
			nd.values[i] = it.value
			nd.total++
		} else {
			nd.refs[i] = it.ref
			nd.counts[i] = it.count
			nd.total += it.count
		}
	}
	return nd
}

func encodeNode(nd *Node) []byte {
	buf := make([]byte, 0, 64+len(nd.keys)*32)
	buf = append(buf, byte(chunks.KindNode))
	buf = protowire.AppendTag(buf, fieldLevel, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(nd.level))
	for i, key := range nd.keys {
		buf = protowire.AppendTag(buf, fieldKey, protowire.BytesType)
		buf = protowire.AppendBytes(buf, key)
		if nd.level == 0 {
			buf = protowire.AppendTag(buf, fieldValue, protowire.BytesType)
			buf = protowire.AppendBytes(buf, nd.values[i])
		} else {
			buf = protowire.AppendTag(buf, fieldRef, protowire.BytesType)
			buf = protowire.AppendBytes(buf, nd.refs[i][:])
			buf = protowire.AppendTag(buf, fieldCount, protowire.VarintType)
			buf = protowire.AppendVarint(buf, nd.counts[i])
		}
	}
	return buf
}

func decodeNode(h hash.Hash, data []byte) (*Node, error) {
	if chunks.KindOf(data) != chunks.KindNode {
		return nil, fmt.Errorf("chunk %s is not a tree node: %w", h, core.ErrCorruption)
	}
	nd := &Node{hash: h}
	b := data[1:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nodeError(h, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldLevel && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			nd.level = int(v)
			b = b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			nd.keys = append(nd.keys, v)
			b = b[n:]
		case num == fieldValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			nd.values = append(nd.values, v)
			nd.total++
			b = b[n:]
		case num == fieldRef && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			ref, err := hash.New(v)
			if err != nil {
				return nil, nodeError(h, err)
			}
			nd.refs = append(nd.refs, ref)
			b = b[n:]
		case num == fieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			nd.counts = append(nd.counts, v)
			nd.total += v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nodeError(h, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if nd.level == 0 && len(nd.values) != len(nd.keys) {
		return nil, nodeError(h, fmt.Errorf("%d keys, %d values", len(nd.keys), len(nd.values)))
	}
	if nd.level > 0 && (len(nd.refs) != len(nd.keys) || len(nd.counts) != len(nd.keys)) {
		return nil, nodeError(h, fmt.Errorf("%d keys, %d refs", len(nd.keys), len(nd.refs)))
	}
	return nd, nil
}

func nodeError(h hash.Hash, err error) error {
	return fmt.Errorf("decoding node %s: %v: %w", h, err, core.ErrCorruption)
}
