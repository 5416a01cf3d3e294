// Package ps provides the persistence layer for TreeDB.
//
// A repository is a content addressed chunk store plus a small mutable state
// file naming, for every branch, its head commit and its staged and working
// roots. Tables are prolly trees; a root value maps table names to tables and
// every commit points at one root value.
//
// # Memory Persistence
//
// For testing or ephemeral databases:
//
//	p, err := ps.NewMemoryPersistence(ps.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For persistent storage:
//
//	p, err := ps.Init(ctx, "/path/to/data", ps.Options{})
//	p, err = ps.Open(ctx, "/path/to/data", ps.Options{})
//
// # Working Sets
//
// Writes go to the working root through a Batch, published with one
// compare-and-swap:
//
//	b, _ := p.BeginBatch(ctx)
//	b.CreateTable(ctx, schema)
//	b.Apply(ctx)
//
// Add stages tables, Commit records the staged root:
//
//	p.Add(ctx, "characters")
//	txn, _ := p.Commit(ctx, "add characters", identity, ps.CommitOptions{})
//
// # Branches
//
// Each branch has its own working set. Merge performs a fast-forward when it
// can and a three-way row merge otherwise.
package ps
