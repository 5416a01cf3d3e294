// Package datas stores the commit graph.
//
// A commit is an immutable chunk naming a root value, its parent commits and
// who made it. Parents must already exist when a commit is written, so the
// graph can never contain a cycle.
//
//	db := datas.NewDatabase(cs)
//	c, err := db.WriteCommit(ctx, root, []hash.Hash{head}, meta, datas.CommitOptions{})
//	for c, err := range db.Log(ctx, c.Hash) {
//	    ...
//	}
package datas
