package ps

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/val"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

func charactersSchema() core.Table {
	return core.Table{
		Name: "characters",
		Columns: []core.Column{
			{Name: "name", Type: core.StringType, Length: 16},
			{Name: "adjective", Type: core.StringType, Length: 32},
			{Name: "id", Type: core.IntType, PrimaryKey: true},
			{Name: "date_of_death", Type: core.TimestampType},
		},
	}
}

func character(id int64, name, adjective string) val.Row {
	return val.Row{name, adjective, id, nil}
}

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()
	p, err := NewMemoryPersistence(Options{Identity: testIdentity})
	if err != nil {
		t.Fatalf("NewMemoryPersistence failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func createTable(t *testing.T, p *Persistence, schema core.Table) {
	t.Helper()
	ctx := context.Background()
	b, err := p.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}
	if err := b.CreateTable(ctx, schema); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if _, err := b.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func editRows(t *testing.T, p *Persistence, table string, deleteRows bool, rows ...val.Row) {
	t.Helper()
	ctx := context.Background()
	b, err := p.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}
	schema, m, err := b.LoadTable(ctx, table)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	edits := make([]prolly.Edit, 0, len(rows))
	for _, row := range rows {
		key, err := val.EncodeKey(schema, row)
		if err != nil {
			t.Fatalf("EncodeKey failed: %v", err)
		}
		edit := prolly.Edit{Key: key, Delete: deleteRows}
		if !deleteRows {
			if edit.Value, err = val.EncodeRow(schema, row); err != nil {
				t.Fatalf("EncodeRow failed: %v", err)
			}
		}
		edits = append(edits, edit)
	}
	if m, err = m.Mutate(ctx, edits); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if err := b.PutTable(ctx, schema, m); err != nil {
		t.Fatalf("PutTable failed: %v", err)
	}
	if _, err := b.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func putRows(t *testing.T, p *Persistence, table string, rows ...val.Row) {
	t.Helper()
	editRows(t, p, table, false, rows...)
}

func deleteRows(t *testing.T, p *Persistence, table string, rows ...val.Row) {
	t.Helper()
	editRows(t, p, table, true, rows...)
}

// readRows returns the rows of table in root, in key order.
func readRows(t *testing.T, p *Persistence, root hash.Hash, table string) []val.Row {
	t.Helper()
	ctx := context.Background()
	v, err := p.View(ctx, root)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	schema, m, err := v.LoadTable(ctx, table)
	if err != nil {
		t.Fatalf("LoadTable(%s) failed: %v", table, err)
	}
	it, err := m.IterAll(ctx)
	if err != nil {
		t.Fatalf("IterAll failed: %v", err)
	}
	var rows []val.Row
	for {
		_, value, err := it.Next(ctx)
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		row, err := val.DecodeRow(schema, value)
		if err != nil {
			t.Fatalf("DecodeRow failed: %v", err)
		}
		rows = append(rows, row)
	}
}

func workingRows(t *testing.T, p *Persistence, table string) []val.Row {
	t.Helper()
	ws, err := p.WorkingSet(context.Background())
	if err != nil {
		t.Fatalf("WorkingSet failed: %v", err)
	}
	return readRows(t, p, ws.Working, table)
}

func commitAll(t *testing.T, p *Persistence, message string) Transaction {
	t.Helper()
	ctx := context.Background()
	if err := p.Add(ctx, "*"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	txn, err := p.Commit(ctx, message, testIdentity, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return txn
}

// commitAt commits everything with a fixed date so histories order predictably.
func commitAt(t *testing.T, p *Persistence, message string, when time.Time) Transaction {
	t.Helper()
	ctx := context.Background()
	if err := p.Add(ctx, "*"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	txn, err := p.Commit(ctx, message, testIdentity, CommitOptions{Date: when})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return txn
}

func statusOf(t *testing.T, p *Persistence) map[string]TableStatus {
	t.Helper()
	statuses, err := p.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	out := make(map[string]TableStatus, len(statuses))
	for _, st := range statuses {
		out[st.Name] = st
	}
	return out
}

func rowNames(rows []val.Row) []string {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i], _ = row[0].(string)
	}
	return names
}
