package op

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/val"
)

func characters() core.Table {
	return core.Table{
		Name: "characters",
		Columns: []core.Column{
			{Name: "name", Type: core.StringType},
			{Name: "id", Type: core.IntType, PrimaryKey: true},
		},
	}
}

func collect(t *testing.T, op *TableOp, start, end []byte) []val.Row {
	t.Helper()
	var rows []val.Row
	for row, err := range op.ScanRange(context.Background(), start, end) {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestTableOpRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := ps.NewMemoryPersistence(ps.Options{})
	require.NoError(t, err)

	b, err := p.BeginBatch(ctx)
	require.NoError(t, err)
	table, err := CreateTable(ctx, b, characters())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Count())

	table, err = table.Put(ctx,
		val.Row{"Levin", int64(3)},
		val.Row{"Anna", int64(1)},
		val.Row{"Vronsky", "2"})
	require.NoError(t, err)
	require.NoError(t, table.Save(ctx, b))
	root, err := b.Apply(ctx)
	require.NoError(t, err)

	db, err := GetDatabase(ctx, p, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"characters"}, db.TableNames())

	table, err = db.GetTable(ctx, "Characters")
	require.NoError(t, err)
	assert.Equal(t, 3, table.Count())
	assert.Equal(t, []core.Column{{Name: "id", Type: core.IntType, PrimaryKey: true}}, table.PrimaryKey())

	row, ok, err := table.Get(ctx, int64(2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, val.Row{"Vronsky", int64(2)}, row)

	_, ok, err = table.Get(ctx, int64(9))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = table.Get(ctx, int64(1), int64(2))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	rows := collect(t, table, nil, nil)
	assert.Equal(t, []val.Row{{"Anna", int64(1)}, {"Vronsky", int64(2)}, {"Levin", int64(3)}}, rows)

	start, err := table.KeyFor(int64(2))
	require.NoError(t, err)
	assert.Equal(t, []val.Row{{"Vronsky", int64(2)}, {"Levin", int64(3)}}, collect(t, table, start, nil))

	smaller, err := table.Delete(ctx, val.Row{nil, int64(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, smaller.Count())
	assert.Equal(t, 3, table.Count(), "writes must not change the original snapshot")
}

func TestTableOpApplyErrors(t *testing.T) {
	ctx := context.Background()
	p, err := ps.NewMemoryPersistence(ps.Options{})
	require.NoError(t, err)
	b, err := p.BeginBatch(ctx)
	require.NoError(t, err)
	table, err := CreateTable(ctx, b, characters())
	require.NoError(t, err)

	_, err = table.Put(ctx, val.Row{"Nobody", nil})
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	_, err = table.Put(ctx, val.Row{"Anna", "one"})
	assert.ErrorIs(t, err, core.ErrSchemaViolation)

	_, err = GetTable(ctx, b, "villains")
	assert.ErrorIs(t, err, core.ErrNoSuchTable)
}

func TestTableOpCopyAndTruncate(t *testing.T) {
	ctx := context.Background()
	p, err := ps.NewMemoryPersistence(ps.Options{})
	require.NoError(t, err)
	b, err := p.BeginBatch(ctx)
	require.NoError(t, err)

	src, err := CreateTable(ctx, b, characters())
	require.NoError(t, err)
	src, err = src.Put(ctx, val.Row{"Anna", int64(1)}, val.Row{"Kitty", int64(2)})
	require.NoError(t, err)

	other := characters()
	other.Name = "copy"
	dst, err := CreateTable(ctx, b, other)
	require.NoError(t, err)
	dst, err = dst.CopyFrom(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, dst.Count())
	assert.Equal(t, src.Rows().HashOf(), dst.Rows().HashOf())

	empty, err := dst.Truncate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count())
}
