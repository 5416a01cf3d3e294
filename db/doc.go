// Package db provides the SQL execution engine for TreeDB.
//
// The Engine type is the main entry point for executing SQL statements
// against the working set of a branch. It parses SQL, applies each write as
// one batch on the working root, and returns results.
//
// # Engine Usage
//
//	engine := db.NewEngine(persistence, identity)
//	result, err := engine.Execute(ctx, "SELECT * FROM users WHERE id = 1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result.Display()
//
// Writes outside BEGIN ... COMMIT publish the new working root with a
// compare-and-swap and are retried with exponential backoff when another
// writer got there first.
//
// # Result Types
//
//   - QueryResult: SELECT, SHOW and DESCRIBE rows
//   - WriteResult: INSERT, UPDATE, DELETE, CREATE, DROP and transaction control
//   - VersionResult: branches, merges and the TREEDB_* procedures
//
// ExportTable and ImportTable move table rows to and from CSV on local
// paths, file://, http(s):// (import only) and s3:// URLs.
package db
