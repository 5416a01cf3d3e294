// Package testutil holds the characters fixture shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/csvio"
	"github.com/nickyhof/TreeDB/val"
)

const TestTable = "characters"

// CreateTableSQL creates the characters table.
const CreateTableSQL = "CREATE TABLE `characters` (" +
	"`name` VARCHAR(32), " +
	"`adjective` VARCHAR(32), " +
	"`id` INT NOT NULL, " +
	"`date_of_death` DATETIME, " +
	"PRIMARY KEY (`id`))"

func CharactersSchema() core.Table {
	return core.Table{
		Name: TestTable,
		Columns: []core.Column{
			{Name: "name", Type: core.StringType, Length: 32},
			{Name: "adjective", Type: core.StringType, Length: 32},
			{Name: "id", Type: core.IntType, PrimaryKey: true, NotNull: true},
			{Name: "date_of_death", Type: core.TimestampType},
		},
	}
}

func year(y int) time.Time {
	return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestDataInitial() []val.Row {
	return []val.Row{
		{"Anna", "tragic", int64(1), year(1877)},
		{"Vronksy", "honorable", int64(2), nil},
		{"Oblonksy", "buffoon", int64(3), nil},
	}
}

func TestDataUpdate() []val.Row {
	return []val.Row{
		{"Vronksy", "honorable", int64(2), year(1879)},
		{"Levin", "tiresome", int64(4), nil},
	}
}

// TestDataFinal is the initial data with the update applied, in primary key
// order.
func TestDataFinal() []val.Row {
	initial, update := TestDataInitial(), TestDataUpdate()
	return []val.Row{initial[0], update[0], initial[2], update[1]}
}

// InsertSQL renders rows as one INSERT into the characters table.
func InsertSQL(rows []val.Row) string {
	values := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			switch cell.(type) {
			case nil:
				cells[j] = "NULL"
			case int64:
				cells[j] = val.Format(cell)
			default:
				cells[j] = "'" + strings.ReplaceAll(val.Format(cell), "'", "''") + "'"
			}
		}
		values[i] = "(" + strings.Join(cells, ", ") + ")"
	}
	return "INSERT INTO " + TestTable + " VALUES " + strings.Join(values, ", ")
}

// WriteCSV writes rows of the characters table to dir/name and returns the
// path.
func WriteCSV(tb testing.TB, dir, name string, rows []val.Row) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(tb, err)
	defer f.Close()

	w := csvio.NewWriter(f, CharactersSchema())
	require.NoError(tb, w.WriteHeader())
	for _, row := range rows {
		require.NoError(tb, w.Write(row))
	}
	require.NoError(tb, w.Flush())
	return path
}

// CompareRows checks expected against actual row by row. Columns named
// date* compare on their first ten characters, and an expected NULL matches
// an actual empty string.
func CompareRows(tb testing.TB, columns []string, expected, actual []val.Row) {
	tb.Helper()
	require.Len(tb, actual, len(expected), "unequal row counts")

	var errors []string
	for i := range expected {
		require.Len(tb, actual[i], len(columns), "row %d", i)
		for j, col := range columns {
			l, r := expected[i][j], actual[i][j]
			if l == nil && (r == nil || r == "") {
				continue
			}
			ls, rs := val.Format(l), val.Format(r)
			if strings.HasPrefix(strings.ToLower(col), "date") {
				ls, rs = prefix(ls, 10), prefix(rs, 10)
			}
			if ls != rs {
				errors = append(errors, col+": "+ls+" != "+rs)
			}
		}
	}
	require.Empty(tb, errors, "unequal columns")
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
