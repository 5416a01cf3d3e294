package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/op"
	"github.com/nickyhof/TreeDB/sql"
	"github.com/nickyhof/TreeDB/val"
)

// checkRow enforces the column constraints of table on a complete row.
func checkRow(table core.Table, row val.Row) error {
	for i, col := range table.Columns {
		cell := row[i]
		if cell == nil {
			if !col.Nullable() {
				return fmt.Errorf("%w: column %s cannot be NULL", core.ErrConstraintViolation, col.Name)
			}
			continue
		}
		if col.Length > 0 {
			if s, ok := cell.(string); ok && utf8.RuneCountInString(s) > col.Length {
				return fmt.Errorf("%w: value too long for %s VARCHAR(%d)", core.ErrSchemaViolation, col.Name, col.Length)
			}
		}
	}
	return nil
}

// keySet tracks encoded primary keys seen in one statement.
type keySet map[string]bool

func (engine *Engine) executeInsertStatement(ctx context.Context, sink op.TableSink, statement sql.InsertStatement, result *WriteResult) error {
	tableOp, err := op.GetTable(ctx, sink, statement.Table)
	if err != nil {
		return err
	}
	table := tableOp.Table

	// Map statement columns to table positions.
	var positions []int
	if len(statement.Columns) == 0 {
		for i := range table.Columns {
			positions = append(positions, i)
		}
	} else {
		seen := make(map[int]bool, len(statement.Columns))
		for _, name := range statement.Columns {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, name, table.Name)
			}
			if seen[idx] {
				return fmt.Errorf("%w: column %s given twice", core.ErrSchemaViolation, name)
			}
			seen[idx] = true
			positions = append(positions, idx)
		}
	}

	edits := make([]op.RowEdit, 0, len(statement.Rows))
	keys := make(keySet, len(statement.Rows))
	for n, values := range statement.Rows {
		if len(values) != len(positions) {
			return fmt.Errorf("%w: row %d has %d values, table %s expects %d",
				core.ErrSchemaViolation, n+1, len(values), table.Name, len(positions))
		}
		row := make(val.Row, len(table.Columns))
		for i, v := range values {
			idx := positions[i]
			if row[idx], err = convertLiteral(table.Columns[idx], v); err != nil {
				return err
			}
		}
		if err := checkRow(table, row); err != nil {
			return err
		}

		key, err := tableOp.KeyOf(row)
		if err != nil {
			return err
		}
		if keys[string(key)] {
			return duplicateKey(tableOp, row)
		}
		exists, err := tableOp.Has(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return duplicateKey(tableOp, row)
		}
		keys[string(key)] = true
		edits = append(edits, op.RowEdit{Row: row})
	}

	updated, err := tableOp.Apply(ctx, edits)
	if err != nil {
		return err
	}
	if err := updated.Save(ctx, sink); err != nil {
		return err
	}
	result.RecordsWritten = len(edits)
	result.ExecutionOps = len(edits)
	return nil
}

func duplicateKey(tableOp *op.TableOp, row val.Row) error {
	pk := tableOp.Table.PrimaryKey()
	cells := make([]string, len(pk))
	for i, idx := range pk {
		cells[i] = val.Format(row[idx])
	}
	return fmt.Errorf("%w: duplicate primary key (%s) in table %s",
		core.ErrSchemaViolation, strings.Join(cells, ", "), tableOp.Table.Name)
}

func (engine *Engine) executeUpdateStatement(ctx context.Context, sink op.TableSink, statement sql.UpdateStatement, result *WriteResult) error {
	tableOp, err := op.GetTable(ctx, sink, statement.Table)
	if err != nil {
		return err
	}
	table := tableOp.Table

	type assignment struct {
		column int
		value  any
	}
	assignments := make([]assignment, len(statement.Updates))
	changesKey := false
	for i, set := range statement.Updates {
		idx := table.ColumnIndex(set.Column)
		if idx < 0 {
			return fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, set.Column, table.Name)
		}
		v, err := convertLiteral(table.Columns[idx], set.Value)
		if err != nil {
			return err
		}
		assignments[i] = assignment{column: idx, value: v}
		changesKey = changesKey || table.Columns[idx].PrimaryKey
	}

	rows, scanned, err := matchingRows(ctx, tableOp, statement.Where)
	if err != nil {
		return err
	}

	// Deletes of moved rows go first so that a row may take over a key
	// released by another row of the same statement.
	var deletes, puts []op.RowEdit
	oldKeys := make(keySet, len(rows))
	newKeys := make(keySet, len(rows))
	for _, row := range rows {
		oldKey, err := tableOp.KeyOf(row)
		if err != nil {
			return err
		}
		oldKeys[string(oldKey)] = true

		updated := row.Copy()
		for _, a := range assignments {
			updated[a.column] = a.value
		}
		if err := checkRow(table, updated); err != nil {
			return err
		}
		if changesKey {
			newKey, err := tableOp.KeyOf(updated)
			if err != nil {
				return err
			}
			if newKeys[string(newKey)] {
				return duplicateKey(tableOp, updated)
			}
			newKeys[string(newKey)] = true
			if string(newKey) != string(oldKey) {
				deletes = append(deletes, op.RowEdit{Row: row, Delete: true})
			}
		}
		puts = append(puts, op.RowEdit{Row: updated})
	}

	// A new key taken by a row the statement does not touch is a collision.
	for key := range newKeys {
		if oldKeys[key] {
			continue
		}
		exists, err := tableOp.Has(ctx, []byte(key))
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: update collides with an existing primary key in table %s",
				core.ErrSchemaViolation, table.Name)
		}
	}

	updated, err := tableOp.Apply(ctx, append(deletes, puts...))
	if err != nil {
		return err
	}
	if err := updated.Save(ctx, sink); err != nil {
		return err
	}
	result.RecordsWritten = len(puts)
	result.ExecutionOps = scanned
	return nil
}

func (engine *Engine) executeDeleteStatement(ctx context.Context, sink op.TableSink, statement sql.DeleteStatement, result *WriteResult) error {
	tableOp, err := op.GetTable(ctx, sink, statement.Table)
	if err != nil {
		return err
	}

	var rows []val.Row
	scanned := 0
	if statement.Where.IsEmpty() {
		scanned = tableOp.Count()
		updated, err := tableOp.Truncate(ctx)
		if err != nil {
			return err
		}
		if err := updated.Save(ctx, sink); err != nil {
			return err
		}
		result.RecordsDeleted = scanned
		result.ExecutionOps = scanned
		return nil
	}

	rows, scanned, err = matchingRows(ctx, tableOp, statement.Where)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		updated, err := tableOp.Delete(ctx, rows...)
		if err != nil {
			return err
		}
		if err := updated.Save(ctx, sink); err != nil {
			return err
		}
	}
	result.RecordsDeleted = len(rows)
	result.ExecutionOps = scanned
	return nil
}

func (engine *Engine) executeCreateTableStatement(ctx context.Context, sink op.TableSink, statement sql.CreateTableStatement, result *WriteResult) error {
	table := core.Table{Name: statement.Table, Columns: statement.Columns}
	if _, err := op.CreateTable(ctx, sink, table); err != nil {
		if statement.IfNotExists && errors.Is(err, core.ErrAlreadyExists) {
			return nil
		}
		return err
	}
	result.TablesCreated = 1
	return nil
}

func (engine *Engine) executeDropTableStatement(ctx context.Context, sink op.TableSink, statement sql.DropTableStatement, result *WriteResult) error {
	if !sink.HasTable(statement.Table) {
		if statement.IfExists {
			return nil
		}
		return fmt.Errorf("%w: %s", core.ErrNoSuchTable, statement.Table)
	}
	if err := sink.DropTable(ctx, statement.Table); err != nil {
		return err
	}
	result.TablesDeleted = 1
	return nil
}
