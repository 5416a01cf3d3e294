package prolly

import "github.com/zeebo/xxh3"

// An item closes its node with probability 1/32 at every level.
const boundaryMask = 1<<5 - 1

// isBoundary reports whether key ends a node at level. The decision depends
// only on the key and the level, never on neighbouring items or edit order.
func isBoundary(key []byte, level int) bool {
	h := xxh3.Hash(key)
	h ^= uint64(level+1) * 0x9e3779b97f4a7c15
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h&boundaryMask == 0
}

// splitItems cuts a sorted run of items into nodes. The final node may end
// without a boundary.
func splitItems(level int, items []item) [][]item {
	var out [][]item
	start := 0
	for i, it := range items {
		if isBoundary(it.key, level) {
			out = append(out, items[start:i+1])
			start = i + 1
		}
	}
	if start < len(items) {
		out = append(out, items[start:])
	}
	return out
}
