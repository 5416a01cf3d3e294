// Package op provides typed operations on TreeDB tables.
//
// The op package sits between the SQL engine (db/) and the persistence layer
// (ps/). It turns rows into prolly tree edits and tree entries back into rows.
//
// # DatabaseOp
//
// DatabaseOp wraps the tables of one root value, either a read-only view or a
// batch on the working root:
//
//	view, _ := p.View(ctx, root)
//	dbOp := op.NewDatabaseOp(view)
//	names := dbOp.TableNames()
//
// # TableOp
//
// TableOp wraps one table's schema and rows:
//
//	tableOp, err := op.GetTable(ctx, batch, "characters")
//
//	// Read operations
//	row, ok, _ := tableOp.Get(ctx, int64(1))   // Point lookup by primary key
//	count := tableOp.Count()                   // Count rows
//	for row, err := range tableOp.Scan(ctx) {
//	    // rows in primary key order
//	}
//
//	// Write operations return a new TableOp; Save puts it into the batch
//	tableOp, _ = tableOp.Put(ctx, row)
//	tableOp, _ = tableOp.Delete(ctx, row)
//	tableOp.Save(ctx, batch)
//
// # Architecture
//
// The layering is:
//
//	SQL Parser (sql/)
//	     ↓
//	SQL Engine (db/)
//	     ↓
//	Operations (op/)     ← This package
//	     ↓
//	Persistence (ps/)
//	     ↓
//	Prolly trees (prolly/) over a chunk store (chunks/)
package op
