// Package TreeDB provides a version-controlled SQL table store.
//
// Tables are prolly trees in a content-addressed chunk store, so every
// version of every table shares unchanged chunks with the others. Changes
// land in a per-branch working set, are staged table by table and recorded
// as commits on a branch, much like files in git.
//
// # Quick Start
//
// Create an in-memory database:
//
//	persistence, _ := ps.NewMemoryPersistence(ps.Options{})
//	db := TreeDB.Open(persistence)
//	engine := db.Engine(core.Identity{Name: "App", Email: "app@example.com"})
//
//	engine.Execute(ctx, "CREATE TABLE users (id INT PRIMARY KEY, name STRING)")
//	engine.Execute(ctx, "INSERT INTO users (id, name) VALUES (1, 'Alice')")
//	engine.Execute(ctx, "CALL TREEDB_COMMIT('-A', '-m', 'add users')")
//
//	result, _ := engine.Execute(ctx, "SELECT * FROM users")
//	result.Display()
//
// Repositories on disk are created with Init and reopened with OpenDir;
// their settings live in .treedb/config.yaml.
//
// # Supported SQL
//
//   - CREATE TABLE [IF NOT EXISTS], DROP TABLE [IF EXISTS]
//   - INSERT, SELECT, UPDATE, DELETE
//   - WHERE with comparisons, AND/OR/NOT, IN, LIKE, IS [NOT] NULL
//   - ORDER BY, LIMIT, OFFSET, DISTINCT
//   - Aggregate functions: COUNT, SUM, AVG, MIN, MAX with GROUP BY
//   - SHOW TABLES, DESCRIBE
//   - Transactions: BEGIN, COMMIT, ROLLBACK
//   - Version control: CREATE BRANCH, CHECKOUT, MERGE, SHOW BRANCHES and
//     CALL TREEDB_ADD, TREEDB_RESET, TREEDB_COMMIT
package TreeDB
