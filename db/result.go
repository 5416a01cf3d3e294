package db

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/val"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	WriteResultType
	VersionResultType
)

type Result interface {
	Type() ResultType
	Display()
	DisplayTo(w io.Writer)
}

// QueryResult holds the rows of a SELECT, SHOW or DESCRIBE. Cells are typed
// as in val.Row.
type QueryResult struct {
	Columns          []string
	Rows             []val.Row
	RecordsRead      int
	ExecutionTimeSec float64
	ExecutionOps     int
}

// WriteResult reports a DDL or DML statement, or the end of a transaction.
type WriteResult struct {
	// Root is the published working root. It is empty for statements inside
	// an open transaction.
	Root             hash.Hash
	InTransaction    bool
	TablesCreated    int
	TablesDeleted    int
	RecordsWritten   int
	RecordsDeleted   int
	Attempts         int
	ExecutionTimeSec float64
	ExecutionOps     int
}

// VersionResult reports a version control statement.
type VersionResult struct {
	Branch      string
	Transaction ps.Transaction
	Message     string
	Conflicts   int
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result WriteResult) Type() ResultType {
	return WriteResultType
}

func (result VersionResult) Type() ResultType {
	return VersionResultType
}

// Data renders every cell as text. NULL renders as "NULL".
func (result QueryResult) Data() [][]string {
	data := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		data[i] = make([]string, len(row))
		for j, cell := range row {
			data[i][j] = val.Format(cell)
		}
	}
	return data
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	switch {
	case secs < 0.001:
		return "<1ms"
	case secs < 1:
		ms := secs * 1000
		if ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	case secs < 60:
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	default:
		mins := int(secs / 60)
		remainSecs := int(secs) % 60
		if remainSecs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm%ds", mins, remainSecs)
	}
}

func throughput(ops int, secs float64) string {
	if secs <= 0 || ops <= 0 {
		return ""
	}
	return ", " + humanize.SIWithDigits(float64(ops)/secs, 1, "") + " ops/s"
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result WriteResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result QueryResult) Display() {
	result.DisplayTo(os.Stdout)
}

func (result QueryResult) DisplayTo(w io.Writer) {
	if len(result.Rows) > 0 {
		data := NewTable(w)
		data.Header(result.Columns)
		data.Bulk(result.Data())
		data.Render()
	}

	fmt.Fprintf(w, "%s rows (%s%s)\n", humanize.Comma(int64(len(result.Rows))), result.ExecutionTime(),
		throughput(result.ExecutionOps, result.ExecutionTimeSec))
}

func (result WriteResult) Display() {
	result.DisplayTo(os.Stdout)
}

func (result WriteResult) DisplayTo(w io.Writer) {
	var parts []string

	if result.TablesCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d table(s) created", result.TablesCreated))
	}
	if result.TablesDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%d table(s) deleted", result.TablesDeleted))
	}
	if result.RecordsWritten > 0 {
		parts = append(parts, fmt.Sprintf("%s record(s) written", humanize.Comma(int64(result.RecordsWritten))))
	}
	if result.RecordsDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%s record(s) deleted", humanize.Comma(int64(result.RecordsDeleted))))
	}
	if result.InTransaction {
		parts = append(parts, "pending commit")
	}

	summary := "OK"
	if len(parts) > 0 {
		summary = strings.Join(parts, ", ")
	}
	fmt.Fprintf(w, "%s (%s%s)\n", summary, result.ExecutionTime(), throughput(result.ExecutionOps, result.ExecutionTimeSec))
}

func (result VersionResult) Display() {
	result.DisplayTo(os.Stdout)
}

func (result VersionResult) DisplayTo(w io.Writer) {
	fmt.Fprintf(w, "[%s] %s\n", result.Branch, result.Message)
	if result.Transaction.Id != "" {
		fmt.Fprintf(w, "  commit %s by %s, %s\n", result.Transaction.Id, result.Transaction.Author,
			humanize.Time(result.Transaction.When))
	}
	if result.Conflicts > 0 {
		fmt.Fprintf(w, "  %d conflicting row(s) resolved\n", result.Conflicts)
	}
}
