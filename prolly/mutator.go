package prolly

import (
	"bytes"
	"context"
	"sort"
)

// Edit is one change to a Map: a put of Value under Key, or a removal of Key.
type Edit struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// levelEdit is a change to the items of one tree level.
type levelEdit struct {
	item
	remove bool
}

func (m Map) Put(ctx context.Context, key, value []byte) (Map, error) {
	return m.Mutate(ctx, []Edit{{Key: key, Value: value}})
}

func (m Map) Delete(ctx context.Context, key []byte) (Map, error) {
	return m.Mutate(ctx, []Edit{{Key: key, Delete: true}})
}

// Mutate applies a batch of edits and returns the resulting map. When a key
// appears more than once the last edit wins. Only nodes on edited paths are
// rewritten; everything else is shared with m.
func (m Map) Mutate(ctx context.Context, edits []Edit) (Map, error) {
	if len(edits) == 0 {
		return m, nil
	}

	pending := normalizeEdits(edits)
	for level := 0; ; level++ {
		written, parent, err := m.mutateLevel(ctx, level, pending)
		if err != nil {
			return Map{}, err
		}
		if level == m.root.level {
			root, err := buildRoot(ctx, m.ns, level, written)
			if err != nil {
				return Map{}, err
			}
			return Map{root: root, ns: m.ns}, nil
		}
		if len(parent) == 0 {
			return m, nil
		}
		pending = parent
	}
}

func normalizeEdits(edits []Edit) []levelEdit {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	out := make([]levelEdit, 0, len(sorted))
	for _, e := range sorted {
		le := levelEdit{item: item{key: e.Key, value: e.Value, count: 1}, remove: e.Delete}
		if n := len(out); n > 0 && bytes.Equal(out[n-1].key, e.Key) {
			out[n-1] = le
			continue
		}
		out = append(out, le)
	}
	return out
}

// mutateLevel applies sorted edits to the nodes at level and returns the nodes
// it wrote plus the edits the level above needs to reference them.
func (m Map) mutateLevel(ctx context.Context, level int, edits []levelEdit) ([]*Node, []levelEdit, error) {
	var written []*Node
	var removed, added []item

	for i := 0; i < len(edits); {
		cur, err := seekLevel(ctx, m.ns, m.root, level, edits[i].key)
		if err != nil {
			return nil, nil, err
		}

		var items []item
		for {
			nd := cur.nd
			last := cur.lastAtLevel()

			j := i
			for j < len(edits) && (last || bytes.Compare(edits[j].key, nd.lastKey()) <= 0) {
				j++
			}
			items = append(items, applyEdits(nd.items(), edits[i:j])...)
			i = j

			if !nd.Empty() {
				removed = append(removed, item{key: nd.lastKey(), ref: nd.hash, count: nd.total})
			}
			if last || (len(items) > 0 && isBoundary(items[len(items)-1].key, level)) {
				break
			}
			if err := cur.nextNode(ctx); err != nil {
				return nil, nil, err
			}
		}

		for _, run := range splitItems(level, items) {
			nd := makeNode(level, run)
			if _, err := m.ns.Write(ctx, nd); err != nil {
				return nil, nil, err
			}
			written = append(written, nd)
			added = append(added, item{key: nd.lastKey(), ref: nd.hash, count: nd.total})
		}
	}

	return written, parentEdits(removed, added), nil
}

// applyEdits merges sorted edits into sorted items.
func applyEdits(items []item, edits []levelEdit) []item {
	out := make([]item, 0, len(items)+len(edits))
	i, j := 0, 0
	for i < len(items) || j < len(edits) {
		switch {
		case j == len(edits):
			out = append(out, items[i])
			i++
		case i == len(items):
			if !edits[j].remove {
				out = append(out, edits[j].item)
			}
			j++
		default:
			cmp := bytes.Compare(items[i].key, edits[j].key)
			if cmp < 0 {
				out = append(out, items[i])
				i++
				continue
			}
			if !edits[j].remove {
				out = append(out, edits[j].item)
			}
			if cmp == 0 {
				i++
			}
			j++
		}
	}
	return out
}

// parentEdits turns replaced and new nodes into edits for the level above.
// A node rewritten to identical content cancels out.
func parentEdits(removed, added []item) []levelEdit {
	byKey := make(map[string]levelEdit, len(removed)+len(added))
	for _, r := range removed {
		byKey[string(r.key)] = levelEdit{item: r, remove: true}
	}
	for _, a := range added {
		k := string(a.key)
		if prev, ok := byKey[k]; ok && prev.remove && prev.ref == a.ref {
			delete(byKey, k)
			continue
		}
		byKey[k] = levelEdit{item: a}
	}

	out := make([]levelEdit, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].key, out[j].key) < 0
	})
	return out
}

// buildRoot stacks levels above a complete level of nodes until one node
// remains, then drops single-child roots.
func buildRoot(ctx context.Context, ns *NodeStore, level int, nodes []*Node) (*Node, error) {
	if len(nodes) == 0 {
		root := makeNode(0, nil)
		if _, err := ns.Write(ctx, root); err != nil {
			return nil, err
		}
		return root, nil
	}

	for len(nodes) > 1 {
		level++
		items := make([]item, len(nodes))
		for i, nd := range nodes {
			items[i] = item{key: nd.lastKey(), ref: nd.hash, count: nd.total}
		}
		var next []*Node
		for _, run := range splitItems(level, items) {
			nd := makeNode(level, run)
			if _, err := ns.Write(ctx, nd); err != nil {
				return nil, err
			}
			next = append(next, nd)
		}
		nodes = next
	}

	root := nodes[0]
	for root.level > 0 && root.Count() == 1 {
		child, err := ns.Read(ctx, root.refs[0])
		if err != nil {
			return nil, err
		}
		root = child
	}
	return root, nil
}
