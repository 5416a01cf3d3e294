package db

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/sql"
	"github.com/nickyhof/TreeDB/val"
)

// condition is a WHERE condition bound to a column position, with its
// literals converted to the column type.
type condition struct {
	sql.WhereCondition
	column int
	right  any
	in     []any
	like   *regexp.Regexp
}

// rowFilter evaluates a WHERE clause. AND binds tighter than OR.
type rowFilter struct {
	// groups are OR-ed; the conditions inside a group are AND-ed.
	groups [][]condition
}

func compileWhere(table core.Table, where sql.WhereClause) (*rowFilter, error) {
	filter := &rowFilter{}
	if where.IsEmpty() {
		return filter, nil
	}
	var group []condition
	for i, wc := range where.Conditions {
		cond, err := bindCondition(table, wc)
		if err != nil {
			return nil, err
		}
		group = append(group, cond)
		if i < len(where.LogicalOps) && where.LogicalOps[i] == sql.LogicalOr {
			filter.groups = append(filter.groups, group)
			group = nil
		}
	}
	filter.groups = append(filter.groups, group)
	return filter, nil
}

func bindCondition(table core.Table, wc sql.WhereCondition) (condition, error) {
	idx := table.ColumnIndex(wc.Left)
	if idx < 0 {
		return condition{}, fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, wc.Left, table.Name)
	}
	col := table.Columns[idx]
	cond := condition{WhereCondition: wc, column: idx}

	var err error
	switch wc.Operator {
	case sql.IsNullOperator, sql.IsNotNullOperator:
	case sql.LikeOperator:
		cond.like, err = compileLike(wc.Right.Text)
	case sql.InOperator:
		cond.in = make([]any, len(wc.InValues))
		for i, v := range wc.InValues {
			if cond.in[i], err = convertLiteral(col, v); err != nil {
				break
			}
		}
	default:
		cond.right, err = convertLiteral(col, wc.Right)
	}
	if err != nil {
		return condition{}, err
	}
	return cond, nil
}

// convertLiteral converts a statement literal to the column's type.
func convertLiteral(col core.Column, v sql.Value) (any, error) {
	cell, err := val.Coerce(col.Type, v.Literal())
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", col.Name, err)
	}
	return cell, nil
}

// compileLike translates a LIKE pattern: % matches any run, _ one character.
// Matching is case-insensitive.
func compileLike(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: bad LIKE pattern %q", core.ErrInvalidArgument, pattern)
	}
	return re, nil
}

func (f *rowFilter) Match(row val.Row) bool {
	if len(f.groups) == 0 {
		return true
	}
	for _, group := range f.groups {
		matched := true
		for _, cond := range group {
			if !cond.eval(row) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// eval applies the condition. A NULL cell fails every comparison, negated or
// not; only IS [NOT] NULL looks at NULLs.
func (cond condition) eval(row val.Row) bool {
	cell := row[cond.column]

	var result bool
	switch cond.Operator {
	case sql.IsNullOperator:
		result = cell == nil
	case sql.IsNotNullOperator:
		result = cell != nil
	default:
		if cell == nil {
			return false
		}
		switch cond.Operator {
		case sql.LikeOperator:
			result = cond.like.MatchString(val.Format(cell))
		case sql.InOperator:
			for _, v := range cond.in {
				if v != nil && val.Equal(cell, v) {
					result = true
					break
				}
			}
		default:
			if cond.right == nil {
				return false
			}
			cmp := val.Compare(cell, cond.right)
			switch cond.Operator {
			case sql.EqualsOperator:
				result = cmp == 0
			case sql.NotEqualsOperator:
				result = cmp != 0
			case sql.LessThanOperator:
				result = cmp < 0
			case sql.GreaterThanOperator:
				result = cmp > 0
			case sql.LessThanOrEqualOperator:
				result = cmp <= 0
			case sql.GreaterThanOrEqualOperator:
				result = cmp >= 0
			}
		}
	}

	if cond.Negated {
		result = !result
	}
	return result
}

// pinnedKey returns the primary key cells when the filter is a single AND
// group that fixes every primary key column with '='.
func (f *rowFilter) pinnedKey(table core.Table) ([]any, bool) {
	if len(f.groups) != 1 {
		return nil, false
	}
	pk := table.PrimaryKey()
	cells := make([]any, len(pk))
	for i, idx := range pk {
		found := false
		for _, cond := range f.groups[0] {
			if cond.column == idx && cond.Operator == sql.EqualsOperator && !cond.Negated && cond.right != nil {
				cells[i] = cond.right
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return cells, true
}
