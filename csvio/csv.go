package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/val"
)

type Writer struct {
	w      *csv.Writer
	codecs []Codec
	record []string
}

func NewWriter(w io.Writer, table core.Table) *Writer {
	codecs := make([]Codec, len(table.Columns))
	for i, col := range table.Columns {
		codecs[i] = CodecFor(col)
	}
	return &Writer{w: csv.NewWriter(w), codecs: codecs, record: make([]string, len(codecs))}
}

func (w *Writer) WriteHeader() error {
	for i, c := range w.codecs {
		w.record[i] = c.col.Name
	}
	return w.w.Write(w.record)
}

func (w *Writer) Write(row val.Row) error {
	if len(row) != len(w.codecs) {
		return fmt.Errorf("%w: row has %d cells, expected %d", core.ErrSchemaViolation, len(row), len(w.codecs))
	}
	for i, c := range w.codecs {
		w.record[i] = c.Encode(row[i])
	}
	return w.w.Write(w.record)
}

// Flush writes buffered records and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Reader maps CSV records onto a table's columns by header name. Columns
// missing from the header read as NULL.
type Reader struct {
	r       *csv.Reader
	table   core.Table
	codecs  []Codec
	columns []int
	line    int
}

// NewReader reads the header. An unknown header fails with
// core.ErrNoSuchColumn; a missing column that cannot be NULL fails with
// core.ErrConstraintViolation.
func NewReader(r io.Reader, table core.Table) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty csv, expected a header", core.ErrSchemaViolation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading csv header: %v", core.ErrSchemaViolation, err)
	}

	cols := make([]int, len(header))
	seen := make([]bool, len(table.Columns))
	for i, name := range header {
		idx := table.ColumnIndex(strings.TrimSpace(name))
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s in table %s", core.ErrNoSuchColumn, name, table.Name)
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: duplicate csv column %s", core.ErrSchemaViolation, name)
		}
		seen[idx] = true
		cols[i] = idx
	}
	for i, col := range table.Columns {
		if !seen[i] && !col.Nullable() {
			return nil, fmt.Errorf("%w: csv has no column %s", core.ErrConstraintViolation, col.Name)
		}
	}

	codecs := make([]Codec, len(table.Columns))
	for i, col := range table.Columns {
		codecs[i] = CodecFor(col)
	}
	return &Reader{r: cr, table: table, codecs: codecs, columns: cols, line: 1}, nil
}

// Read returns the next row, or io.EOF after the last one.
func (r *Reader) Read() (val.Row, error) {
	record, err := r.r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: csv line %d: %v", core.ErrSchemaViolation, r.line+1, err)
	}
	r.line++

	row := make(val.Row, len(r.table.Columns))
	for i, field := range record {
		idx := r.columns[i]
		v, err := r.codecs[idx].Decode(field)
		if err != nil {
			return nil, fmt.Errorf("csv line %d, column %s: %w", r.line, r.table.Columns[idx].Name, err)
		}
		row[idx] = v
	}
	return row, nil
}
