package datas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

type fixture struct {
	cs  *chunks.MemoryStore
	db  *Database
	now time.Time
}

func newFixture() *fixture {
	cs := chunks.NewMemoryStore()
	return &fixture{cs: cs, db: NewDatabase(cs), now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) root(t *testing.T, content string) hash.Hash {
	h, err := f.cs.Put(context.Background(), []byte(content))
	require.NoError(t, err)
	return h
}

func (f *fixture) commit(t *testing.T, content string, parents ...hash.Hash) *Commit {
	f.now = f.now.Add(time.Minute)
	c, err := f.db.WriteCommit(context.Background(), f.root(t, content), parents, CommitMeta{
		Name:      "tester",
		Email:     "tester@example.com",
		Timestamp: f.now,
		Message:   content,
	}, CommitOptions{})
	require.NoError(t, err)
	return c
}

func messages(t *testing.T, db *Database, heads ...hash.Hash) []string {
	var out []string
	for c, err := range db.Log(context.Background(), heads...) {
		require.NoError(t, err)
		out = append(out, c.Meta.Message)
	}
	return out
}

func TestWriteAndReadCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.commit(t, "init")
	second := f.commit(t, "second", first.Hash)

	fresh := NewDatabase(f.cs)
	got, err := fresh.ReadCommit(ctx, second.Hash)
	require.NoError(t, err)
	assert.Equal(t, second.Root, got.Root)
	assert.Equal(t, []hash.Hash{first.Hash}, got.Parents)
	assert.Equal(t, uint64(2), got.Height)
	assert.Equal(t, "tester", got.Meta.Name)
	assert.Equal(t, "tester@example.com", got.Meta.Email)
	assert.Equal(t, "second", got.Meta.Message)
	assert.True(t, second.Meta.Timestamp.Equal(got.Meta.Timestamp))
	assert.Equal(t, chunks.KindCommit, chunks.KindOf(mustGet(t, f.cs, second.Hash)))
}

func mustGet(t *testing.T, cs chunks.ChunkStore, h hash.Hash) []byte {
	data, err := cs.Get(context.Background(), h)
	require.NoError(t, err)
	return data
}

func TestEmptyCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.commit(t, "init")

	_, err := f.db.WriteCommit(ctx, first.Root, []hash.Hash{first.Hash}, CommitMeta{Message: "again"}, CommitOptions{})
	assert.ErrorIs(t, err, core.ErrEmptyCommit)

	c, err := f.db.WriteCommit(ctx, first.Root, []hash.Hash{first.Hash}, CommitMeta{Message: "again"}, CommitOptions{AllowEmpty: true})
	require.NoError(t, err)
	assert.Equal(t, first.Root, c.Root)
}

func TestParentsMustExist(t *testing.T) {
	f := newFixture()
	_, err := f.db.WriteCommit(context.Background(), f.root(t, "x"), []hash.Hash{hash.Of([]byte("nope"))}, CommitMeta{}, CommitOptions{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.db.WriteCommit(context.Background(), hash.Of([]byte("no root")), nil, CommitMeta{}, CommitOptions{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTimestampNeverPrecedesParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.commit(t, "init")

	c, err := f.db.WriteCommit(ctx, f.root(t, "old"), []hash.Hash{first.Hash}, CommitMeta{
		Timestamp: first.Meta.Timestamp.Add(-time.Hour),
	}, CommitOptions{})
	require.NoError(t, err)
	assert.True(t, c.Meta.Timestamp.Equal(first.Meta.Timestamp))
	assert.Equal(t, []string{"", "init"}, messages(t, f.db, c.Hash))
}

func TestLogOrder(t *testing.T) {
	f := newFixture()
	a := f.commit(t, "a")
	b := f.commit(t, "b", a.Hash)
	c := f.commit(t, "c", a.Hash)
	d := f.commit(t, "d", b.Hash)
	m := f.commit(t, "merge", d.Hash, c.Hash)

	assert.Equal(t, []string{"merge", "d", "c", "b", "a"}, messages(t, f.db, m.Hash))
	assert.Equal(t, []string{"d", "c", "b", "a"}, messages(t, f.db, d.Hash, c.Hash))
}

func TestLogStopsEarly(t *testing.T) {
	f := newFixture()
	a := f.commit(t, "a")
	b := f.commit(t, "b", a.Hash)

	n := 0
	for _, err := range f.db.Log(context.Background(), b.Hash) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLogMissingCommit(t *testing.T) {
	f := newFixture()
	var errs []error
	for _, err := range f.db.Log(context.Background(), hash.Of([]byte("missing"))) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], core.ErrNotFound)
}

func TestMergeBase(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a := f.commit(t, "a")
	b := f.commit(t, "b", a.Hash)
	c := f.commit(t, "c", b.Hash)
	d := f.commit(t, "d", b.Hash)
	e := f.commit(t, "e", d.Hash)

	base, err := f.db.MergeBase(ctx, c.Hash, e.Hash)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, base)

	base, err = f.db.MergeBase(ctx, a.Hash, e.Hash)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, base)

	m := f.commit(t, "m", c.Hash, e.Hash)
	base, err = f.db.MergeBase(ctx, m.Hash, e.Hash)
	require.NoError(t, err)
	assert.Equal(t, e.Hash, base)

	other := f.commit(t, "other")
	_, err = f.db.MergeBase(ctx, other.Hash, e.Hash)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIsAncestor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a := f.commit(t, "a")
	b := f.commit(t, "b", a.Hash)
	c := f.commit(t, "c", b.Hash)
	d := f.commit(t, "d", a.Hash)

	ok, err := f.db.IsAncestor(ctx, a.Hash, c.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.db.IsAncestor(ctx, c.Hash, a.Hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.db.IsAncestor(ctx, d.Hash, c.Hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.db.IsAncestor(ctx, c.Hash, c.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h, err := f.cs.Put(ctx, []byte{byte(chunks.KindCommit), 0x08})
	require.NoError(t, err)
	_, err = f.db.ReadCommit(ctx, h)
	assert.ErrorIs(t, err, core.ErrCorruption)
}
