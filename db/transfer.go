package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nickyhof/TreeDB/csvio"
	"github.com/nickyhof/TreeDB/op"
	"github.com/nickyhof/TreeDB/val"
)

// ImportOptions controls how imported rows meet existing ones.
type ImportOptions struct {
	// Replace empties the table before importing.
	Replace bool
	// Update overwrites rows whose primary key already exists instead of
	// failing with core.ErrSchemaViolation.
	Update bool
}

// ExportTable writes table as CSV with a header row to dest, a local path or
// a file:// or s3:// URL.
func (engine *Engine) ExportTable(ctx context.Context, table, dest string) (WriteResult, error) {
	startTime := time.Now()
	src, err := engine.source(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	tableOp, err := op.GetTable(ctx, src, table)
	if err != nil {
		return WriteResult{}, err
	}

	out, err := openRemoteWriter(ctx, dest, engine.Remote)
	if err != nil {
		return WriteResult{}, err
	}
	written, err := writeCSV(ctx, tableOp, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return WriteResult{}, fmt.Errorf("export %s to %s: %w", table, dest, err)
	}

	engine.log.WithField("table", table).WithField("rows", written).Info("table exported")
	return WriteResult{
		RecordsWritten:   written,
		ExecutionOps:     written,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
	}, nil
}

func writeCSV(ctx context.Context, tableOp *op.TableOp, w io.Writer) (int, error) {
	cw := csvio.NewWriter(w, tableOp.Table)
	if err := cw.WriteHeader(); err != nil {
		return 0, err
	}
	written := 0
	for row, err := range tableOp.Scan(ctx) {
		if err != nil {
			return written, err
		}
		if err := cw.Write(row); err != nil {
			return written, err
		}
		written++
	}
	return written, cw.Flush()
}

// ImportTable loads CSV rows from src into an existing table. The header
// names the columns; columns it leaves out are NULL. All rows apply in one
// statement or none do.
func (engine *Engine) ImportTable(ctx context.Context, table, src string, opts ImportOptions) (WriteResult, error) {
	source, err := engine.source(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	target, err := op.GetTable(ctx, source, table)
	if err != nil {
		return WriteResult{}, err
	}

	in, err := openRemoteReader(ctx, src, engine.Remote)
	if err != nil {
		return WriteResult{}, err
	}
	rows, err := readCSV(in, target)
	in.Close()
	if err != nil {
		return WriteResult{}, fmt.Errorf("import %s from %s: %w", table, src, err)
	}

	result, err := engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
		return importRows(ctx, sink, table, rows, opts, result)
	})
	if err != nil {
		return WriteResult{}, err
	}
	engine.log.WithField("table", table).WithField("rows", result.RecordsWritten).Info("table imported")
	return result, nil
}

func readCSV(r io.Reader, tableOp *op.TableOp) ([]val.Row, error) {
	cr, err := csvio.NewReader(r, tableOp.Table)
	if err != nil {
		return nil, err
	}
	var rows []val.Row
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if err := checkRow(tableOp.Table, row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func importRows(ctx context.Context, sink op.TableSink, table string, rows []val.Row, opts ImportOptions, result *WriteResult) error {
	tableOp, err := op.GetTable(ctx, sink, table)
	if err != nil {
		return err
	}
	if opts.Replace {
		if tableOp, err = tableOp.Truncate(ctx); err != nil {
			return err
		}
	}

	keys := make(keySet, len(rows))
	edits := make([]op.RowEdit, len(rows))
	for i, row := range rows {
		key, err := tableOp.KeyOf(row)
		if err != nil {
			return err
		}
		if keys[string(key)] {
			return duplicateKey(tableOp, row)
		}
		keys[string(key)] = true
		if !opts.Update {
			exists, err := tableOp.Has(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				return duplicateKey(tableOp, row)
			}
		}
		edits[i] = op.RowEdit{Row: row}
	}

	updated, err := tableOp.Apply(ctx, edits)
	if err != nil {
		return err
	}
	if err := updated.Save(ctx, sink); err != nil {
		return err
	}
	result.RecordsWritten = len(rows)
	result.ExecutionOps = len(rows)
	return nil
}
