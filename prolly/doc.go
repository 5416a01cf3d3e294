// Package prolly implements the ordered, content-addressed tree that stores a
// table's rows.
//
// A Map is a probabilistic B-tree (prolly tree). Node boundaries are decided
// by hashing each item's key, so the shape of the tree depends only on the
// set of keys and values it holds: two maps with the same contents have the
// same root hash no matter which edits produced them. Mutations are copy on
// write and rewrite only the nodes on edited paths, so versions share every
// untouched subtree.
//
//	m, _ := prolly.NewEmptyMap(ctx, ns)
//	m, _ = m.Put(ctx, key, value)
//	v, ok, _ := m.Get(ctx, key)
//
//	iter, _ := m.IterRange(ctx, start, end)
//	for {
//	    k, v, err := iter.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	}
//
// DiffMaps compares two maps top-down and skips every subtree whose hash is
// equal on both sides.
package prolly
