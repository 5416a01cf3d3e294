package prolly

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

func newTestNodeStore() (*NodeStore, *chunks.MemoryStore) {
	cs := chunks.NewMemoryStore()
	return NewNodeStore(cs, 128), cs
}

func key(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

func value(i int) []byte {
	return []byte(fmt.Sprintf("row-%d", i))
}

func buildMap(t *testing.T, ns *NodeStore, keys []int) Map {
	ctx := context.Background()
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)

	edits := make([]Edit, len(keys))
	for i, k := range keys {
		edits[i] = Edit{Key: key(k), Value: value(k)}
	}
	m, err = m.Mutate(ctx, edits)
	require.NoError(t, err)
	return m
}

func collect(t *testing.T, m Map, start, end []byte) ([][]byte, [][]byte) {
	ctx := context.Background()
	iter, err := m.IterRange(ctx, start, end)
	require.NoError(t, err)

	var keys, values [][]byte
	for {
		k, v, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values
}

func TestEmptyMap(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), m.Count())
	_, ok, err := m.Get(ctx, key(1))
	require.NoError(t, err)
	assert.False(t, ok)

	keys, _ := collect(t, m, nil, nil)
	assert.Empty(t, keys)

	loaded, err := NewMapFromRoot(ctx, ns, m.HashOf())
	require.NoError(t, err)
	assert.Equal(t, m.HashOf(), loaded.HashOf())
}

func TestInsertThenScanYieldsKeyOrder(t *testing.T) {
	ns, _ := newTestNodeStore()
	rng := rand.New(rand.NewSource(1))
	ids := rng.Perm(5000)

	m := buildMap(t, ns, ids)
	assert.Equal(t, uint64(5000), m.Count())
	assert.Greater(t, m.Height(), 1)

	keys, values := collect(t, m, nil, nil)
	require.Len(t, keys, 5000)
	for i := range keys {
		assert.Equal(t, key(i), keys[i])
		assert.Equal(t, value(i), values[i])
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m := buildMap(t, ns, evens(2000))

	for i := 0; i < 2000; i++ {
		v, ok, err := m.Get(ctx, key(i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.True(t, ok, "key %d", i)
			assert.Equal(t, value(i), v)
		} else {
			assert.False(t, ok, "key %d", i)
		}
	}
}

func evens(n int) []int {
	var out []int
	for i := 0; i < n; i += 2 {
		out = append(out, i)
	}
	return out
}

func TestHistoryIndependence(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()

	ids := make([]int, 3000)
	for i := range ids {
		ids[i] = i
	}
	bulk := buildMap(t, ns, ids)

	rng := rand.New(rand.NewSource(7))
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)
	for _, i := range rng.Perm(3000) {
		m, err = m.Put(ctx, key(i), value(i))
		require.NoError(t, err)
	}
	assert.Equal(t, bulk.HashOf(), m.HashOf())

	// Insert extra keys, then remove them again.
	extra := bulk
	for i := 3000; i < 3400; i++ {
		extra, err = extra.Put(ctx, key(i), value(i))
		require.NoError(t, err)
	}
	assert.NotEqual(t, bulk.HashOf(), extra.HashOf())
	var deletes []Edit
	for i := 3000; i < 3400; i++ {
		deletes = append(deletes, Edit{Key: key(i), Delete: true})
	}
	back, err := extra.Mutate(ctx, deletes)
	require.NoError(t, err)
	assert.Equal(t, bulk.HashOf(), back.HashOf())
}

func TestDeleteEverything(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m := buildMap(t, ns, rand.New(rand.NewSource(3)).Perm(1500))

	var edits []Edit
	for i := 0; i < 1500; i++ {
		edits = append(edits, Edit{Key: key(i), Delete: true})
	}
	m, err := m.Mutate(ctx, edits)
	require.NoError(t, err)

	empty, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, empty.HashOf(), m.HashOf())
	assert.Equal(t, uint64(0), m.Count())
}

func TestRandomEditsMatchModel(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	rng := rand.New(rand.NewSource(42))

	model := map[int][]byte{}
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)

	for round := 0; round < 30; round++ {
		var edits []Edit
		for n := rng.Intn(200) + 1; n > 0; n-- {
			k := rng.Intn(4000)
			if rng.Intn(3) == 0 {
				edits = append(edits, Edit{Key: key(k), Delete: true})
				delete(model, k)
			} else {
				v := []byte(fmt.Sprintf("v%d-%d", k, round))
				edits = append(edits, Edit{Key: key(k), Value: v})
				model[k] = v
			}
		}
		m, err = m.Mutate(ctx, edits)
		require.NoError(t, err)
		require.Equal(t, uint64(len(model)), m.Count(), "round %d", round)
	}

	want := make([]int, 0, len(model))
	for k := range model {
		want = append(want, k)
	}
	sort.Ints(want)

	keys, values := collect(t, m, nil, nil)
	require.Len(t, keys, len(want))
	for i, k := range want {
		assert.Equal(t, key(k), keys[i])
		assert.Equal(t, model[k], values[i])
	}

	rebuilt := buildModelMap(t, ns, model)
	assert.Equal(t, rebuilt.HashOf(), m.HashOf())
}

func buildModelMap(t *testing.T, ns *NodeStore, model map[int][]byte) Map {
	ctx := context.Background()
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)
	var edits []Edit
	for k, v := range model {
		edits = append(edits, Edit{Key: key(k), Value: v})
	}
	m, err = m.Mutate(ctx, edits)
	require.NoError(t, err)
	return m
}

func TestLastEditWins(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m, err := NewEmptyMap(ctx, ns)
	require.NoError(t, err)

	m, err = m.Mutate(ctx, []Edit{
		{Key: key(1), Value: []byte("a")},
		{Key: key(1), Value: []byte("b")},
		{Key: key(2), Value: []byte("c")},
		{Key: key(2), Delete: true},
	})
	require.NoError(t, err)

	v, ok, err := m.Get(ctx, key(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), v)
	assert.Equal(t, uint64(1), m.Count())
}

func TestIterRangeRestartable(t *testing.T) {
	ns, _ := newTestNodeStore()
	m := buildMap(t, ns, rand.New(rand.NewSource(5)).Perm(3000))

	keys, _ := collect(t, m, key(1000), key(1100))
	require.Len(t, keys, 100)
	assert.Equal(t, key(1000), keys[0])
	assert.Equal(t, key(1099), keys[99])

	// Restart from a key that is not present.
	m2 := buildMap(t, ns, evens(3000))
	keys, _ = collect(t, m2, key(1001), nil)
	require.NotEmpty(t, keys)
	assert.Equal(t, key(1002), keys[0])
	assert.Len(t, keys, 999)

	keys, _ = collect(t, m2, key(5000), nil)
	assert.Empty(t, keys)
}

func TestScanPinsSnapshot(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m := buildMap(t, ns, evens(1000))

	iter, err := m.IterAll(ctx)
	require.NoError(t, err)
	_, _, err = iter.Next(ctx)
	require.NoError(t, err)

	var edits []Edit
	for i := 0; i < 1000; i++ {
		edits = append(edits, Edit{Key: key(i), Delete: true})
	}
	_, err = m.Mutate(ctx, edits)
	require.NoError(t, err)

	n := 1
	for {
		_, _, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 500, n)
}

func TestStructuralSharing(t *testing.T) {
	ctx := context.Background()
	ns, cs := newTestNodeStore()
	m := buildMap(t, ns, evens(20000))
	before := cs.Stats().Writes

	m2, err := m.Put(ctx, key(10001), value(10001))
	require.NoError(t, err)
	written := cs.Stats().Writes - before

	assert.NotEqual(t, m.HashOf(), m2.HashOf())
	assert.LessOrEqual(t, written, uint64(4*m2.Height()))

	// The old version is still intact.
	_, ok, err := m.Get(ctx, key(10001))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopEditKeepsRoot(t *testing.T) {
	ctx := context.Background()
	ns, _ := newTestNodeStore()
	m := buildMap(t, ns, evens(5000))

	same, err := m.Put(ctx, key(100), value(100))
	require.NoError(t, err)
	assert.Equal(t, m.HashOf(), same.HashOf())

	same, err = m.Delete(ctx, key(101))
	require.NoError(t, err)
	assert.Equal(t, m.HashOf(), same.HashOf())
}

func TestCorruptNodeIsReported(t *testing.T) {
	ctx := context.Background()
	cs := chunks.NewMemoryStore()
	ns := NewNodeStore(cs, 16)

	h, err := cs.Put(ctx, []byte{byte(chunks.KindCommit), 1, 2})
	require.NoError(t, err)
	_, err = NewMapFromRoot(ctx, ns, h)
	assert.ErrorIs(t, err, core.ErrCorruption)

	_, err = NewMapFromRoot(ctx, ns, hash.Of([]byte("missing")))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWalkNodes(t *testing.T) {
	ctx := context.Background()
	ns, cs := newTestNodeStore()
	m := buildMap(t, ns, evens(4000))

	seen := hash.NewHashSet()
	require.NoError(t, WalkNodes(ctx, ns, m.HashOf(), func(h hash.Hash) (bool, error) {
		if seen.Has(h) {
			return false, nil
		}
		seen.Insert(h)
		return true, nil
	}))
	assert.Greater(t, len(seen), 1)
	assert.LessOrEqual(t, len(seen), cs.Len())

	var total uint64
	for h := range seen {
		nd, err := ns.Read(ctx, h)
		require.NoError(t, err)
		if nd.IsLeaf() {
			total += uint64(nd.Count())
		}
	}
	assert.Equal(t, m.Count(), total)
}

func TestNodeBoundariesAreContentDefined(t *testing.T) {
	items := make([]item, 1000)
	for i := range items {
		items[i] = item{key: key(i), value: value(i)}
	}
	runs := splitItems(0, items)
	require.Greater(t, len(runs), 1)

	var rejoined []item
	for i, run := range runs {
		if i < len(runs)-1 {
			assert.True(t, isBoundary(run[len(run)-1].key, 0))
		}
		rejoined = append(rejoined, run...)
	}
	assert.Len(t, rejoined, len(items))
	assert.True(t, bytes.Equal(rejoined[999].key, key(999)))
}
