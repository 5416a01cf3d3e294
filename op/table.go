package op

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/val"
)

// TableOp is an immutable snapshot of one table. Writes return a new TableOp.
type TableOp struct {
	Table core.Table
	rows  prolly.Map
}

// RowEdit puts Row, or deletes the row with Row's primary key when Delete is
// set.
type RowEdit struct {
	Row    val.Row
	Delete bool
}

func NewTableOp(table core.Table, rows prolly.Map) *TableOp {
	return &TableOp{Table: table, rows: rows}
}

// CreateTable adds an empty table to sink.
func CreateTable(ctx context.Context, sink TableSink, table core.Table) (*TableOp, error) {
	if err := sink.CreateTable(ctx, table); err != nil {
		return nil, err
	}
	return GetTable(ctx, sink, table.Name)
}

// GetTable loads a table. It fails with core.ErrNoSuchTable when src has no
// such table.
func GetTable(ctx context.Context, src TableSource, name string) (*TableOp, error) {
	table, rows, err := src.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewTableOp(table, rows), nil
}

func (op *TableOp) Rows() prolly.Map {
	return op.rows
}

// PrimaryKey returns the primary key columns in declared order.
func (op *TableOp) PrimaryKey() []core.Column {
	pk := op.Table.PrimaryKey()
	cols := make([]core.Column, len(pk))
	for i, idx := range pk {
		cols[i] = op.Table.Columns[idx]
	}
	return cols
}

func (op *TableOp) KeyOf(row val.Row) ([]byte, error) {
	return val.EncodeKey(op.Table, row)
}

// KeyFor encodes primary key cells given in primary key order.
func (op *TableOp) KeyFor(pk ...any) ([]byte, error) {
	types := val.KeyTypes(op.Table)
	if len(pk) != len(types) {
		return nil, fmt.Errorf("%w: table %s has %d primary key columns, got %d values",
			core.ErrInvalidArgument, op.Table.Name, len(types), len(pk))
	}
	return val.EncodeKeyCells(types, pk)
}

// Get looks a row up by its primary key cells.
func (op *TableOp) Get(ctx context.Context, pk ...any) (val.Row, bool, error) {
	key, err := op.KeyFor(pk...)
	if err != nil {
		return nil, false, err
	}
	return op.GetByKey(ctx, key)
}

func (op *TableOp) GetByKey(ctx context.Context, key []byte) (val.Row, bool, error) {
	data, ok, err := op.rows.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	row, err := val.DecodeRow(op.Table, data)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (op *TableOp) Has(ctx context.Context, key []byte) (bool, error) {
	return op.rows.Has(ctx, key)
}

func (op *TableOp) Count() int {
	return int(op.rows.Count())
}

// Scan yields every row in primary key order.
func (op *TableOp) Scan(ctx context.Context) iter.Seq2[val.Row, error] {
	return op.ScanRange(ctx, nil, nil)
}

// ScanRange yields rows with start <= key < end in key order. Nil bounds are
// open.
func (op *TableOp) ScanRange(ctx context.Context, start, end []byte) iter.Seq2[val.Row, error] {
	return func(yield func(val.Row, error) bool) {
		it, err := op.rows.IterRange(ctx, start, end)
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			_, data, err := it.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			row, err := val.DecodeRow(op.Table, data)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Apply encodes the edits and applies them in one tree mutation. When several
// edits share a key the last one wins.
func (op *TableOp) Apply(ctx context.Context, edits []RowEdit) (*TableOp, error) {
	if len(edits) == 0 {
		return op, nil
	}
	treeEdits := make([]prolly.Edit, len(edits))
	for i, e := range edits {
		key, err := op.KeyOf(e.Row)
		if err != nil {
			return nil, err
		}
		treeEdits[i] = prolly.Edit{Key: key, Delete: e.Delete}
		if !e.Delete {
			if treeEdits[i].Value, err = val.EncodeRow(op.Table, e.Row); err != nil {
				return nil, err
			}
		}
	}
	rows, err := op.rows.Mutate(ctx, treeEdits)
	if err != nil {
		return nil, err
	}
	return NewTableOp(op.Table, rows), nil
}

func (op *TableOp) Put(ctx context.Context, rows ...val.Row) (*TableOp, error) {
	edits := make([]RowEdit, len(rows))
	for i, row := range rows {
		edits[i] = RowEdit{Row: row}
	}
	return op.Apply(ctx, edits)
}

// Delete removes the rows with the primary keys of rows. Other cells are
// ignored.
func (op *TableOp) Delete(ctx context.Context, rows ...val.Row) (*TableOp, error) {
	edits := make([]RowEdit, len(rows))
	for i, row := range rows {
		edits[i] = RowEdit{Row: row, Delete: true}
	}
	return op.Apply(ctx, edits)
}

// Truncate returns the table with every row removed.
func (op *TableOp) Truncate(ctx context.Context) (*TableOp, error) {
	rows, err := prolly.NewEmptyMap(ctx, op.rows.NodeStore())
	if err != nil {
		return nil, err
	}
	return NewTableOp(op.Table, rows), nil
}

// CopyFrom returns this table with every row of source added. Source must
// have the same columns.
func (op *TableOp) CopyFrom(ctx context.Context, source *TableOp) (*TableOp, error) {
	if len(source.Table.Columns) != len(op.Table.Columns) {
		return nil, fmt.Errorf("%w: cannot copy %s into %s", core.ErrSchemaViolation, source.Table.Name, op.Table.Name)
	}
	var edits []RowEdit
	for row, err := range source.Scan(ctx) {
		if err != nil {
			return nil, err
		}
		edits = append(edits, RowEdit{Row: row})
	}
	return op.Apply(ctx, edits)
}

// Save writes the table into sink under its schema name.
func (op *TableOp) Save(ctx context.Context, sink TableSink) error {
	return sink.PutTable(ctx, op.Table, op.rows)
}

// Drop removes the table from sink.
func (op *TableOp) Drop(ctx context.Context, sink TableSink) error {
	return sink.DropTable(ctx, op.Table.Name)
}
