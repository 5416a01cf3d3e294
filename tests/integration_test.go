package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/val"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

// TestFunc is the signature for test functions that work with any persistence
type TestFunc func(t *testing.T, engine *db.Engine)

// runWithBothPersistence runs a test against an in-memory and an on-disk
// repository.
func runWithBothPersistence(t *testing.T, testFunc TestFunc) {
	t.Run("Memory", func(t *testing.T) {
		persistence, err := ps.NewMemoryPersistence(ps.Options{Identity: testIdentity})
		require.NoError(t, err)
		instance := TreeDB.Open(persistence)
		defer instance.Close()
		testFunc(t, instance.Engine(testIdentity))
	})

	t.Run("File", func(t *testing.T) {
		cfg := config.Default()
		cfg.User = testIdentity
		instance, err := TreeDB.Init(context.Background(), t.TempDir(), cfg, nil)
		require.NoError(t, err)
		defer instance.Close()
		testFunc(t, instance.Engine(testIdentity))
	})
}

func exec(t *testing.T, engine *db.Engine, query string) db.Result {
	t.Helper()
	result, err := engine.Execute(context.Background(), query)
	require.NoError(t, err, query)
	return result
}

func query(t *testing.T, engine *db.Engine, q string) db.QueryResult {
	t.Helper()
	result, ok := exec(t, engine, q).(db.QueryResult)
	require.True(t, ok, "%s did not return rows", q)
	return result
}

func ids(qr db.QueryResult) []int64 {
	out := make([]int64, len(qr.Rows))
	for i, row := range qr.Rows {
		out[i] = row[0].(int64)
	}
	return out
}

func setupProducts(t *testing.T, engine *db.Engine) {
	t.Helper()
	exec(t, engine, "CREATE TABLE products (id INT PRIMARY KEY, name STRING, category STRING, price FLOAT, stock INT)")
	exec(t, engine, `INSERT INTO products VALUES
		(1, 'Laptop', 'Electronics', 999.99, 10),
		(2, 'Mouse', 'Electronics', 29.99, 100),
		(3, 'Desk', 'Furniture', 299.99, 5),
		(4, 'Chair', 'Furniture', 149.99, NULL),
		(5, 'Monitor', 'Electronics', 399.99, 15)`)
}

func TestIntegrationWorkflow(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		ctx := context.Background()
		setupProducts(t, engine)
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'catalog')")
		catalog, err := engine.HeadRoot(ctx)
		require.NoError(t, err)

		exec(t, engine, "UPDATE products SET price = 899.99 WHERE id = 1")
		exec(t, engine, "DELETE FROM products WHERE category = 'Furniture'")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'sale')")

		qr := query(t, engine, "SELECT id, price FROM products")
		assert.Equal(t, []int64{1, 2, 5}, ids(qr))
		assert.Equal(t, 899.99, qr.Rows[0][1])

		log, err := engine.Log(ctx, 0)
		require.NoError(t, err)
		require.Len(t, log, 3)
		assert.Equal(t, "sale", log[0].Message)

		head, err := engine.HeadRoot(ctx)
		require.NoError(t, err)
		deltas, err := engine.TableDeltas(ctx, catalog, head)
		require.NoError(t, err)
		require.Len(t, deltas, 1)
		assert.Equal(t, "products", deltas[0].Name)
	})
}

func TestIntegrationAggregates(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		setupProducts(t, engine)

		qr := query(t, engine, "SELECT COUNT(*), COUNT(stock), SUM(stock), MIN(price), MAX(name) FROM products")
		require.Len(t, qr.Rows, 1)
		assert.Equal(t, val.Row{int64(5), int64(4), int64(130), 29.99, "Mouse"}, qr.Rows[0])

		qr = query(t, engine, "SELECT category, COUNT(*), AVG(stock) FROM products GROUP BY category ORDER BY category")
		require.Len(t, qr.Rows, 2)
		assert.Equal(t, "Electronics", qr.Rows[0][0])
		assert.Equal(t, int64(3), qr.Rows[0][1])
		assert.InDelta(t, 125.0/3, qr.Rows[0][2], 1e-9)
		assert.Equal(t, "Furniture", qr.Rows[1][0])
		assert.InDelta(t, 5.0, qr.Rows[1][2], 1e-9, "AVG skips NULL")

		_, err := engine.Execute(context.Background(), "SELECT SUM(name) FROM products")
		assert.ErrorIs(t, err, core.ErrSchemaViolation)
	})
}

func TestIntegrationDescribe(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE t (id INT PRIMARY KEY, name VARCHAR(20) NOT NULL, seen DATETIME)")
		qr := query(t, engine, "DESCRIBE t")
		assert.Equal(t, []string{"Field", "Type", "Null", "Key"}, qr.Columns)
		require.Len(t, qr.Rows, 3)
		assert.Equal(t, "PRI", qr.Rows[0][3])
		assert.Equal(t, "VARCHAR(20)", qr.Rows[1][1])
		assert.Equal(t, "NO", qr.Rows[1][2])
		assert.Equal(t, "YES", qr.Rows[2][2])
	})
}

func TestIntegrationDistinct(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		setupProducts(t, engine)
		qr := query(t, engine, "SELECT DISTINCT category FROM products ORDER BY category DESC")
		assert.Equal(t, val.Row{"Furniture"}, qr.Rows[0])
		assert.Len(t, qr.Rows, 2)
	})
}

func TestIntegrationWhereOperators(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		setupProducts(t, engine)

		tests := map[string][]int64{
			"SELECT id FROM products WHERE price > 300":                                       {1, 5},
			"SELECT id FROM products WHERE price <= 149.99":                                   {2, 4},
			"SELECT id FROM products WHERE category != 'Electronics'":                         {3, 4},
			"SELECT id FROM products WHERE stock IS NULL":                                     {4},
			"SELECT id FROM products WHERE stock IS NOT NULL AND stock < 15":                  {1, 3},
			"SELECT id FROM products WHERE name LIKE 'm%'":                                    {2, 5},
			"SELECT id FROM products WHERE name NOT LIKE '%o%'":                               {3, 4},
			"SELECT id FROM products WHERE id IN (1, 3, 9)":                                   {1, 3},
			"SELECT id FROM products WHERE id NOT IN (1, 3)":                                  {2, 4, 5},
			"SELECT id FROM products WHERE category = 'Furniture' OR price < 50 AND stock > 50": {2, 3, 4},
			"SELECT id FROM products WHERE stock != 10":                                       {2, 3, 5},
		}
		for q, want := range tests {
			assert.Equal(t, want, ids(query(t, engine, q)), q)
		}
	})
}

func TestIntegrationDateColumns(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE events (id INT PRIMARY KEY, day DATE, at DATETIME)")
		exec(t, engine, `INSERT INTO events VALUES
			(1, '2024-03-01', '2024-03-01 09:30:00'),
			(2, '2023-12-31', NULL),
			(3, NULL, '2024-01-15 00:00:00')`)

		qr := query(t, engine, "SELECT id, day, at FROM events WHERE id = 1")
		require.Len(t, qr.Rows, 1)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), qr.Rows[0][1])
		assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), qr.Rows[0][2])
		assert.Equal(t, [][]string{{"1", "2024-03-01", "2024-03-01 09:30:00"}}, qr.Data())

		assert.Equal(t, []int64{3, 2, 1}, ids(query(t, engine, "SELECT id FROM events ORDER BY day")), "NULL sorts first")
		assert.Equal(t, []int64{1}, ids(query(t, engine, "SELECT id FROM events WHERE day > '2024-01-01'")))

		_, err := engine.Execute(context.Background(), "INSERT INTO events VALUES (4, 'not a date', NULL)")
		assert.ErrorIs(t, err, core.ErrSchemaViolation)
	})
}

func TestIntegrationOffsetLimit(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		setupProducts(t, engine)
		assert.Equal(t, []int64{1, 2}, ids(query(t, engine, "SELECT id FROM products LIMIT 2")))
		assert.Equal(t, []int64{3, 4}, ids(query(t, engine, "SELECT id FROM products LIMIT 2 OFFSET 2")))
		assert.Equal(t, []int64{5}, ids(query(t, engine, "SELECT id FROM products LIMIT 10 OFFSET 4")))
		assert.Empty(t, query(t, engine, "SELECT id FROM products LIMIT 10 OFFSET 10").Rows)
		assert.Equal(t, []int64{1, 5}, ids(query(t, engine, "SELECT id FROM products ORDER BY price DESC LIMIT 2")))
	})
}

func TestIntegrationErrorHandling(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		setupProducts(t, engine)
		tests := map[string]error{
			"SELECT * FROM nope":                                core.ErrNoSuchTable,
			"SELECT nope FROM products":                         core.ErrNoSuchColumn,
			"INSERT INTO products VALUES (1, 'x', 'y', 1.0, 1)": core.ErrSchemaViolation,
			"INSERT INTO products (id) VALUES (NULL)":           core.ErrConstraintViolation,
			"INSERT INTO products (id, price) VALUES (9, 'x')":  core.ErrSchemaViolation,
			"CREATE TABLE products (id INT PRIMARY KEY)":        core.ErrAlreadyExists,
			"CREATE TABLE nokey (id INT)":                       core.ErrSchemaViolation,
			"DROP TABLE nope":                                   core.ErrNoSuchTable,
			"SELEKT * FROM products":                            core.ErrInvalidArgument,
			"CALL TREEDB_COMMIT('-m', 'nothing')":               core.ErrNothingToCommit,
			"CHECKOUT nowhere":                                  core.ErrNotFound,
		}
		for q, want := range tests {
			_, err := engine.Execute(context.Background(), q)
			assert.ErrorIs(t, err, want, q)
		}
	})
}

func TestIntegrationTransactionCommands(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE t (id INT PRIMARY KEY)")

		exec(t, engine, "BEGIN")
		exec(t, engine, "INSERT INTO t VALUES (1)")
		exec(t, engine, "ROLLBACK")
		assert.Empty(t, query(t, engine, "SELECT * FROM t").Rows)

		exec(t, engine, "BEGIN")
		exec(t, engine, "INSERT INTO t VALUES (1), (2)")
		exec(t, engine, "DELETE FROM t WHERE id = 1")
		result := exec(t, engine, "COMMIT").(db.WriteResult)
		assert.False(t, result.Root.IsEmpty())
		assert.Equal(t, []int64{2}, ids(query(t, engine, "SELECT * FROM t")))

		_, err := engine.Execute(context.Background(), "COMMIT")
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})
}

func TestIntegrationDropOperations(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		ctx := context.Background()
		exec(t, engine, "CREATE TABLE a (id INT PRIMARY KEY)")
		exec(t, engine, "CREATE TABLE b (id INT PRIMARY KEY)")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'tables')")

		exec(t, engine, "DROP TABLE a")
		exec(t, engine, "DROP TABLE IF EXISTS a")
		exec(t, engine, "CREATE TABLE IF NOT EXISTS b (id INT PRIMARY KEY)")

		status, err := engine.Status(ctx)
		require.NoError(t, err)
		var dropped *ps.TableStatus
		for i := range status {
			if status[i].Name == "a" {
				dropped = &status[i]
			}
		}
		require.NotNil(t, dropped)
		assert.True(t, dropped.Deleted)
		assert.Equal(t, ps.Modified, dropped.State)

		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'drop a')")
		qr := query(t, engine, "SHOW TABLES")
		assert.Equal(t, [][]string{{"b"}}, qr.Data())
	})
}

func TestFilePersistenceReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.User = testIdentity
	cfg.Storage.Backend = ps.BackendBadger

	instance, err := TreeDB.Init(ctx, dir, cfg, nil)
	require.NoError(t, err)
	engine := instance.Engine(testIdentity)
	setupProducts(t, engine)
	exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'catalog')")
	exec(t, engine, "CREATE BRANCH dev")
	require.NoError(t, instance.Close())

	reopened, err := TreeDB.OpenDir(ctx, dir, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, ps.BackendBadger, reopened.Config.Storage.Backend)

	engine = reopened.Engine(testIdentity)
	assert.Len(t, query(t, engine, "SELECT * FROM products").Rows, 5)
	qr := query(t, engine, "SHOW BRANCHES")
	assert.Equal(t, [][]string{{"dev", "false"}, {"main", "true"}}, qr.Data())
}

func TestBranchingSQL(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE t (id INT PRIMARY KEY, name STRING)")
		exec(t, engine, "INSERT INTO t VALUES (1, 'base')")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'base')")

		exec(t, engine, "CREATE BRANCH feature")
		exec(t, engine, "CHECKOUT feature")
		assert.Equal(t, "feature", engine.CurrentBranch())
		exec(t, engine, "INSERT INTO t VALUES (2, 'feature')")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'feature work')")

		exec(t, engine, "CHECKOUT main")
		exec(t, engine, "INSERT INTO t VALUES (3, 'main')")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'main work')")
		assert.Equal(t, []int64{1, 3}, ids(query(t, engine, "SELECT id FROM t")))

		vr := exec(t, engine, "MERGE feature").(db.VersionResult)
		assert.Equal(t, "main", vr.Branch)
		assert.Len(t, vr.Transaction.Parents, 2)
		assert.Equal(t, []int64{1, 2, 3}, ids(query(t, engine, "SELECT id FROM t")))
	})
}

func TestMergeConflictStrategies(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		ctx := context.Background()
		exec(t, engine, "CREATE TABLE t (id INT PRIMARY KEY, name STRING)")
		exec(t, engine, "INSERT INTO t VALUES (1, 'base')")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'base')")
		exec(t, engine, "CREATE BRANCH other")

		exec(t, engine, "UPDATE t SET name = 'main' WHERE id = 1")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'main edit')")
		exec(t, engine, "CHECKOUT other")
		exec(t, engine, "UPDATE t SET name = 'other' WHERE id = 1")
		require.NoError(t, engine.Add(ctx, "*"))
		_, err := engine.Commit(ctx, "other edit", testIdentity, ps.CommitOptions{Date: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		exec(t, engine, "CHECKOUT main")

		_, err = engine.Execute(ctx, "MERGE other")
		assert.ErrorIs(t, err, core.ErrMergeConflict)
		_, err = engine.Execute(ctx, "MERGE other WITH ff_only")
		assert.ErrorIs(t, err, core.ErrMergeConflict)

		vr := exec(t, engine, "MERGE other WITH row_level").(db.VersionResult)
		assert.Equal(t, 1, vr.Conflicts)
		qr := query(t, engine, "SELECT name FROM t")
		assert.Equal(t, [][]string{{"other"}}, qr.Data(), "the newer side wins")
	})
}

func TestBranchFromTransaction(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, engine *db.Engine) {
		exec(t, engine, "CREATE TABLE data (id INT PRIMARY KEY, name STRING)")
		exec(t, engine, "INSERT INTO data VALUES (1, 'first')")
		first := exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'first')").(db.VersionResult)

		exec(t, engine, "INSERT INTO data VALUES (2, 'second'), (3, 'third')")
		exec(t, engine, "CALL TREEDB_COMMIT('-A', '-m', 'more')")

		exec(t, engine, "CREATE BRANCH old_state FROM '"+first.Transaction.Id+"'")
		exec(t, engine, "CHECKOUT old_state")
		qr := query(t, engine, "SELECT * FROM data")
		assert.Equal(t, [][]string{{"1", "first"}}, qr.Data())

		exec(t, engine, "CHECKOUT main")
		assert.Len(t, query(t, engine, "SELECT * FROM data").Rows, 3)
	})
}
