package db

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/op"
	"github.com/nickyhof/TreeDB/sql"
	"github.com/nickyhof/TreeDB/val"
)

// matchingRows returns the rows of tableOp accepted by where, in primary key
// order, and the number of rows read. When where pins the whole primary key
// the row is looked up instead of scanned.
func matchingRows(ctx context.Context, tableOp *op.TableOp, where sql.WhereClause) ([]val.Row, int, error) {
	filter, err := compileWhere(tableOp.Table, where)
	if err != nil {
		return nil, 0, err
	}

	if pk, ok := filter.pinnedKey(tableOp.Table); ok {
		row, found, err := tableOp.Get(ctx, pk...)
		if err != nil || !found {
			return nil, 0, err
		}
		if !filter.Match(row) {
			return nil, 1, nil
		}
		return []val.Row{row}, 1, nil
	}

	var rows []val.Row
	scanned := 0
	for row, err := range tableOp.Scan(ctx) {
		if err != nil {
			return nil, scanned, err
		}
		scanned++
		if filter.Match(row) {
			rows = append(rows, row)
		}
	}
	return rows, scanned, nil
}

func (engine *Engine) executeSelectStatement(ctx context.Context, statement sql.SelectStatement) (Result, error) {
	startTime := time.Now()

	src, err := engine.source(ctx)
	if err != nil {
		return nil, err
	}
	tableOp, err := op.GetTable(ctx, src, statement.Table)
	if err != nil {
		return nil, err
	}
	table := tableOp.Table

	rows, scanned, err := matchingRows(ctx, tableOp, statement.Where)
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if len(statement.Aggregates) > 0 || len(statement.GroupBy) > 0 {
		result, err = aggregate(table, rows, statement)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = project(table, rows, statement)
		if err != nil {
			return nil, err
		}
	}

	if statement.Distinct {
		result.Rows = distinct(result.Rows)
	}

	// Apply OFFSET
	if statement.Offset > 0 {
		if statement.Offset >= len(result.Rows) {
			result.Rows = nil
		} else {
			result.Rows = result.Rows[statement.Offset:]
		}
	}

	// Apply LIMIT
	if statement.Limit > 0 && len(result.Rows) > statement.Limit {
		result.Rows = result.Rows[:statement.Limit]
	}

	result.RecordsRead = len(result.Rows)
	result.ExecutionOps = scanned
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}

// project sorts table rows and picks the selected columns.
func project(table core.Table, rows []val.Row, statement sql.SelectStatement) (QueryResult, error) {
	var indexes []int
	if len(statement.Columns) == 0 {
		for i := range table.Columns {
			indexes = append(indexes, i)
		}
	} else {
		for _, name := range statement.Columns {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return QueryResult{}, fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, name, table.Name)
			}
			indexes = append(indexes, idx)
		}
	}

	if len(statement.OrderBy) > 0 {
		keys := make([]sortKey, len(statement.OrderBy))
		for i, clause := range statement.OrderBy {
			idx := table.ColumnIndex(clause.Column)
			if idx < 0 {
				return QueryResult{}, fmt.Errorf("%w: %s in ORDER BY", core.ErrNoSuchColumn, clause.Column)
			}
			keys[i] = sortKey{column: idx, descending: clause.Descending}
		}
		sortRows(rows, keys)
	}

	result := QueryResult{
		Columns: make([]string, len(indexes)),
		Rows:    make([]val.Row, len(rows)),
	}
	for i, idx := range indexes {
		result.Columns[i] = table.Columns[idx].Name
	}
	for i, row := range rows {
		out := make(val.Row, len(indexes))
		for j, idx := range indexes {
			out[j] = row[idx]
		}
		result.Rows[i] = out
	}
	return result, nil
}

type sortKey struct {
	column     int
	descending bool
}

func sortRows(rows []val.Row, keys []sortKey) {
	slices.SortStableFunc(rows, func(a, b val.Row) int {
		for _, key := range keys {
			cmp := val.Compare(a[key.column], b[key.column])
			if cmp != 0 {
				if key.descending {
					return -cmp
				}
				return cmp
			}
		}
		return 0
	})
}

// distinct keeps the first of each run of equal rows, preserving order.
func distinct(rows []val.Row) []val.Row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		var key strings.Builder
		for _, cell := range row {
			// the type prefix keeps 1 and '1' apart
			fmt.Fprintf(&key, "%T:%s\x00", cell, val.Format(cell))
		}
		if !seen[key.String()] {
			seen[key.String()] = true
			out = append(out, row)
		}
	}
	return out
}

// aggregate groups rows by the GROUP BY columns and computes the aggregates
// of each group. Plain select columns must be grouping columns. Groups come
// out in grouping-key order unless ORDER BY says otherwise.
func aggregate(table core.Table, rows []val.Row, statement sql.SelectStatement) (QueryResult, error) {
	groupBy := make([]int, len(statement.GroupBy))
	for i, name := range statement.GroupBy {
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return QueryResult{}, fmt.Errorf("%w: %s in GROUP BY", core.ErrNoSuchColumn, name)
		}
		groupBy[i] = idx
	}

	// Output columns: the plain select columns, or the grouping columns when
	// none are named, followed by the aggregates.
	plain := statement.Columns
	if len(plain) == 0 {
		plain = statement.GroupBy
	}
	var result QueryResult
	var plainIdx []int
	for _, name := range plain {
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return QueryResult{}, fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, name, table.Name)
		}
		if !slices.Contains(groupBy, idx) {
			return QueryResult{}, fmt.Errorf("%w: column %s must appear in GROUP BY", core.ErrInvalidArgument, name)
		}
		plainIdx = append(plainIdx, idx)
		result.Columns = append(result.Columns, table.Columns[idx].Name)
	}

	aggs := make([]aggregator, len(statement.Aggregates))
	for i, expr := range statement.Aggregates {
		agg, err := newAggregator(table, expr)
		if err != nil {
			return QueryResult{}, err
		}
		aggs[i] = agg
		result.Columns = append(result.Columns, expr.Name())
	}

	// Group rows; with no GROUP BY all rows form one group, even when empty.
	keys := make([]sortKey, len(groupBy))
	for i, idx := range groupBy {
		keys[i] = sortKey{column: idx}
	}
	sortRows(rows, keys)
	var groups [][]val.Row
	for _, row := range rows {
		if n := len(groups); n > 0 && sameGroup(groups[n-1][0], row, groupBy) {
			groups[n-1] = append(groups[n-1], row)
			continue
		}
		groups = append(groups, []val.Row{row})
	}
	if len(groupBy) == 0 && len(groups) == 0 {
		groups = append(groups, nil)
	}

	for _, group := range groups {
		out := make(val.Row, 0, len(result.Columns))
		for _, idx := range plainIdx {
			out = append(out, group[0][idx])
		}
		for _, agg := range aggs {
			out = append(out, agg.compute(group))
		}
		result.Rows = append(result.Rows, out)
	}

	if len(statement.OrderBy) > 0 {
		orderKeys := make([]sortKey, len(statement.OrderBy))
		for i, clause := range statement.OrderBy {
			idx := slices.IndexFunc(result.Columns, func(name string) bool {
				return strings.EqualFold(name, clause.Column)
			})
			if idx < 0 {
				return QueryResult{}, fmt.Errorf("%w: %s in ORDER BY", core.ErrNoSuchColumn, clause.Column)
			}
			orderKeys[i] = sortKey{column: idx, descending: clause.Descending}
		}
		sortRows(result.Rows, orderKeys)
	}
	return result, nil
}

func sameGroup(a, b val.Row, groupBy []int) bool {
	for _, idx := range groupBy {
		if val.Compare(a[idx], b[idx]) != 0 {
			return false
		}
	}
	return true
}

type aggregator struct {
	function string
	column   int // -1 for COUNT(*)
	colType  core.ColumnType
}

func newAggregator(table core.Table, expr sql.AggregateExpr) (aggregator, error) {
	agg := aggregator{function: expr.Function, column: -1}
	if expr.Column == "*" {
		if expr.Function != "COUNT" {
			return agg, fmt.Errorf("%w: %s(*)", core.ErrInvalidArgument, expr.Function)
		}
		return agg, nil
	}
	idx := table.ColumnIndex(expr.Column)
	if idx < 0 {
		return agg, fmt.Errorf("%w: %s in %s()", core.ErrNoSuchColumn, expr.Column, expr.Function)
	}
	agg.column = idx
	agg.colType = table.Columns[idx].Type
	if (expr.Function == "SUM" || expr.Function == "AVG") && !agg.colType.IsNumeric() {
		return agg, fmt.Errorf("%w: %s of non-numeric column %s", core.ErrSchemaViolation, expr.Function, expr.Column)
	}
	return agg, nil
}

// compute folds a group. NULL cells are skipped; SUM, AVG, MIN and MAX of no
// values are NULL.
func (agg aggregator) compute(rows []val.Row) any {
	if agg.column < 0 {
		return int64(len(rows))
	}

	var (
		count  int64
		intSum int64
		fltSum float64
		best   any
	)
	for _, row := range rows {
		cell := row[agg.column]
		if cell == nil {
			continue
		}
		count++
		switch agg.function {
		case "SUM", "AVG":
			switch x := cell.(type) {
			case int64:
				intSum += x
				fltSum += float64(x)
			case float64:
				fltSum += x
			}
		case "MIN":
			if best == nil || val.Compare(cell, best) < 0 {
				best = cell
			}
		case "MAX":
			if best == nil || val.Compare(cell, best) > 0 {
				best = cell
			}
		}
	}

	switch agg.function {
	case "COUNT":
		return count
	case "SUM":
		if count == 0 {
			return nil
		}
		if agg.colType == core.IntType {
			return intSum
		}
		return fltSum
	case "AVG":
		if count == 0 {
			return nil
		}
		return fltSum / float64(count)
	default:
		return best
	}
}

func (engine *Engine) executeDescribeStatement(ctx context.Context, statement sql.DescribeStatement) (Result, error) {
	startTime := time.Now()
	src, err := engine.source(ctx)
	if err != nil {
		return nil, err
	}
	tableOp, err := op.GetTable(ctx, src, statement.Table)
	if err != nil {
		return nil, err
	}

	result := QueryResult{Columns: []string{"Field", "Type", "Null", "Key"}}
	for _, col := range tableOp.Table.Columns {
		typeName := col.Type.String()
		if col.Length > 0 {
			typeName = fmt.Sprintf("VARCHAR(%d)", col.Length)
		}
		nullable, key := "YES", ""
		if !col.Nullable() {
			nullable = "NO"
		}
		if col.PrimaryKey {
			key = "PRI"
		}
		result.Rows = append(result.Rows, val.Row{col.Name, typeName, nullable, key})
	}
	result.RecordsRead = len(result.Rows)
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}

func (engine *Engine) executeShowTablesStatement(ctx context.Context) (Result, error) {
	startTime := time.Now()
	src, err := engine.source(ctx)
	if err != nil {
		return nil, err
	}
	names := src.TableNames()
	slices.Sort(names)

	result := QueryResult{Columns: []string{"name"}}
	for _, name := range names {
		result.Rows = append(result.Rows, val.Row{name})
	}
	result.RecordsRead = len(result.Rows)
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}
