package db

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/val"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	persistence, err := ps.NewMemoryPersistence(ps.Options{Identity: testIdentity})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.Close() })

	engine := NewEngine(persistence, testIdentity)
	mustExec(t, engine, "CREATE TABLE users (id INT PRIMARY KEY, name STRING, age INT)")
	return engine
}

func mustExec(t *testing.T, engine *Engine, query string) Result {
	t.Helper()
	result, err := engine.Execute(context.Background(), query)
	require.NoError(t, err, query)
	return result
}

func query(t *testing.T, engine *Engine, q string) QueryResult {
	t.Helper()
	result := mustExec(t, engine, q)
	qr, ok := result.(QueryResult)
	require.True(t, ok, "expected QueryResult, got %T", result)
	return qr
}

func insertTestData(t *testing.T, engine *Engine) {
	t.Helper()
	mustExec(t, engine, "INSERT INTO users (id, name, age) VALUES (1, 'Alice', 30), (2, 'Bob', 25)")
	mustExec(t, engine, "INSERT INTO users VALUES (3, 'Charlie', 35)")
}

func TestEngineSelect(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	qr := query(t, engine, "SELECT * FROM users")
	assert.Equal(t, []string{"id", "name", "age"}, qr.Columns)
	assert.Equal(t, 3, qr.RecordsRead)
	assert.Equal(t, val.Row{int64(1), "Alice", int64(30)}, qr.Rows[0])
	assert.Equal(t, val.Row{int64(3), "Charlie", int64(35)}, qr.Rows[2])
}

func TestEngineSelectWithWhere(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	tests := []struct {
		where string
		ids   []int64
	}{
		{"age > 28", []int64{1, 3}},
		{"age >= 25 AND age < 35", []int64{1, 2}},
		{"name = 'Bob' OR age = 35", []int64{2, 3}},
		{"age < 26 OR age > 34 AND name = 'Charlie'", []int64{2, 3}},
		{"name LIKE 'a%'", []int64{1}},
		{"name NOT LIKE '%li%'", []int64{2}},
		{"id IN (1, 3, 7)", []int64{1, 3}},
		{"id NOT IN (1, 3)", []int64{2}},
		{"NOT age = 30", []int64{2, 3}},
		{"name != 'Alice'", []int64{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			qr := query(t, engine, "SELECT id FROM users WHERE "+tt.where)
			var ids []int64
			for _, row := range qr.Rows {
				ids = append(ids, row[0].(int64))
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestEngineSelectPointLookup(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	qr := query(t, engine, "SELECT name FROM users WHERE id = 2")
	require.Len(t, qr.Rows, 1)
	assert.Equal(t, "Bob", qr.Rows[0][0])
	assert.Equal(t, 1, qr.ExecutionOps)

	qr = query(t, engine, "SELECT name FROM users WHERE id = 2 AND age = 99")
	assert.Empty(t, qr.Rows)

	qr = query(t, engine, "SELECT name FROM users WHERE id = 42")
	assert.Empty(t, qr.Rows)

	qr = query(t, engine, "SELECT name FROM users WHERE age = 25")
	assert.Equal(t, 3, qr.ExecutionOps)
}

func TestEngineSelectOrderBy(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	qr := query(t, engine, "SELECT name FROM users ORDER BY age DESC")
	assert.Equal(t, "Charlie", qr.Rows[0][0])
	assert.Equal(t, "Bob", qr.Rows[2][0])
}

func TestEngineSelectLimitOffset(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	qr := query(t, engine, "SELECT id FROM users LIMIT 2")
	assert.Len(t, qr.Rows, 2)

	qr = query(t, engine, "SELECT id FROM users LIMIT 2 OFFSET 1")
	require.Len(t, qr.Rows, 2)
	assert.Equal(t, int64(2), qr.Rows[0][0])

	qr = query(t, engine, "SELECT id FROM users OFFSET 10")
	assert.Empty(t, qr.Rows)
}

func TestEngineUnknownIdentifiers(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	_, err := engine.Execute(ctx, "SELECT * FROM nope")
	assert.ErrorIs(t, err, core.ErrNoSuchTable)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = engine.Execute(ctx, "SELECT nope FROM users")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	_, err = engine.Execute(ctx, "SELECT * FROM users WHERE nope = 1")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	_, err = engine.Execute(ctx, "INSERT INTO users (id, nope) VALUES (1, 2)")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	_, err = engine.Execute(ctx, "UPDATE users SET nope = 1")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	_, err = engine.Execute(ctx, "DELETE FROM nope")
	assert.ErrorIs(t, err, core.ErrNoSuchTable)
}

func TestEngineAggregates(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)
	mustExec(t, engine, "INSERT INTO users (id, name) VALUES (4, 'Dave')")

	qr := query(t, engine, "SELECT COUNT(*), COUNT(age), SUM(age), AVG(age), MIN(name), MAX(age) FROM users")
	assert.Equal(t, []string{"COUNT(*)", "COUNT(age)", "SUM(age)", "AVG(age)", "MIN(name)", "MAX(age)"}, qr.Columns)
	require.Len(t, qr.Rows, 1)
	assert.Equal(t, val.Row{int64(4), int64(3), int64(90), float64(30), "Alice", int64(35)}, qr.Rows[0])

	qr = query(t, engine, "SELECT COUNT(*) AS n, SUM(age) FROM users WHERE id > 100")
	assert.Equal(t, []string{"n", "SUM(age)"}, qr.Columns)
	assert.Equal(t, []val.Row{{int64(0), nil}}, qr.Rows)
}

func TestEngineGroupBy(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "INSERT INTO users VALUES (1, 'a', 30), (2, 'b', 25), (3, 'c', 30), (4, 'd', NULL)")

	qr := query(t, engine, "SELECT age, COUNT(*) FROM users GROUP BY age")
	assert.Equal(t, []string{"age", "COUNT(*)"}, qr.Columns)
	assert.Equal(t, []val.Row{
		{nil, int64(1)},
		{int64(25), int64(1)},
		{int64(30), int64(2)},
	}, qr.Rows)

	qr = query(t, engine, "SELECT age, COUNT(*) AS n FROM users GROUP BY age ORDER BY n DESC LIMIT 1")
	assert.Equal(t, []val.Row{{int64(30), int64(2)}}, qr.Rows)

	_, err := engine.Execute(context.Background(), "SELECT name, COUNT(*) FROM users GROUP BY age")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEngineDistinct(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "INSERT INTO users VALUES (1, 'a', 30), (2, 'b', 25), (3, 'c', 30)")

	qr := query(t, engine, "SELECT DISTINCT age FROM users")
	assert.Equal(t, []val.Row{{int64(30)}, {int64(25)}}, qr.Rows)
}

func TestEngineInsertConstraints(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	mustExec(t, engine, "CREATE TABLE people (id INT PRIMARY KEY, name VARCHAR(5) NOT NULL, born DATE)")
	mustExec(t, engine, "INSERT INTO people VALUES (1, 'Ann', '1990-04-01')")

	_, err := engine.Execute(ctx, "INSERT INTO people VALUES (1, 'Bo', NULL)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "collision with an existing row")

	_, err = engine.Execute(ctx, "INSERT INTO people VALUES (2, 'Bo', NULL), (2, 'Cy', NULL)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "collision inside the statement")

	_, err = engine.Execute(ctx, "INSERT INTO people VALUES (3, NULL, NULL)")
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	_, err = engine.Execute(ctx, "INSERT INTO people (name) VALUES ('Di')")
	assert.ErrorIs(t, err, core.ErrConstraintViolation, "primary key cannot be NULL")

	_, err = engine.Execute(ctx, "INSERT INTO people VALUES ('x', 'Ed', NULL)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "bad integer")

	_, err = engine.Execute(ctx, "INSERT INTO people VALUES (4, 'Eleanor', NULL)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "too long")

	_, err = engine.Execute(ctx, "INSERT INTO people VALUES (4, 'Ed')")
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "value count")

	// Failed statements leave nothing behind.
	qr := query(t, engine, "SELECT COUNT(*) FROM people")
	assert.Equal(t, int64(1), qr.Rows[0][0])

	qr = query(t, engine, "SELECT born FROM people WHERE id = 1")
	assert.Equal(t, time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC), qr.Rows[0][0])
}

func TestEngineUpdate(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	result := mustExec(t, engine, "UPDATE users SET age = 31, name = 'Alicia' WHERE id = 1")
	assert.Equal(t, 1, result.(WriteResult).RecordsWritten)

	qr := query(t, engine, "SELECT name, age FROM users WHERE id = 1")
	assert.Equal(t, val.Row{"Alicia", int64(31)}, qr.Rows[0])

	result = mustExec(t, engine, "UPDATE users SET age = NULL WHERE age > 30")
	assert.Equal(t, 2, result.(WriteResult).RecordsWritten)
	qr = query(t, engine, "SELECT id FROM users WHERE age IS NULL")
	assert.Len(t, qr.Rows, 2)
}

func TestEngineUpdatePrimaryKey(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	mustExec(t, engine, "UPDATE users SET id = 10 WHERE id = 1")
	qr := query(t, engine, "SELECT id FROM users")
	assert.Equal(t, []val.Row{{int64(2)}, {int64(3)}, {int64(10)}}, qr.Rows)

	_, err := engine.Execute(ctx, "UPDATE users SET id = 3 WHERE id = 2")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)

	_, err = engine.Execute(ctx, "UPDATE users SET id = 5")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)

	_, err = engine.Execute(ctx, "UPDATE users SET id = NULL WHERE id = 2")
	assert.ErrorIs(t, err, core.ErrConstraintViolation)
}

func TestEngineDelete(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	result := mustExec(t, engine, "DELETE FROM users WHERE age < 31")
	assert.Equal(t, 2, result.(WriteResult).RecordsDeleted)
	qr := query(t, engine, "SELECT id FROM users")
	assert.Equal(t, []val.Row{{int64(3)}}, qr.Rows)

	result = mustExec(t, engine, "DELETE FROM users")
	assert.Equal(t, 1, result.(WriteResult).RecordsDeleted)
	qr = query(t, engine, "SELECT id FROM users")
	assert.Empty(t, qr.Rows)
}

func TestEngineCreateDropTable(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)

	_, err := engine.Execute(ctx, "CREATE TABLE users (id INT PRIMARY KEY)")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	result := mustExec(t, engine, "CREATE TABLE IF NOT EXISTS users (id INT PRIMARY KEY)")
	assert.Equal(t, 0, result.(WriteResult).TablesCreated)

	_, err = engine.Execute(ctx, "CREATE TABLE nokey (name STRING)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)

	result = mustExec(t, engine, "DROP TABLE users")
	assert.Equal(t, 1, result.(WriteResult).TablesDeleted)

	_, err = engine.Execute(ctx, "DROP TABLE users")
	assert.ErrorIs(t, err, core.ErrNoSuchTable)
	mustExec(t, engine, "DROP TABLE IF EXISTS users")
}

func TestEngineShowTablesAndDescribe(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "CREATE TABLE accounts (owner VARCHAR(20) NOT NULL, n INT, PRIMARY KEY (owner, n))")

	qr := query(t, engine, "SHOW TABLES")
	assert.Equal(t, []val.Row{{"accounts"}, {"users"}}, qr.Rows)

	qr = query(t, engine, "DESCRIBE accounts")
	assert.Equal(t, []string{"Field", "Type", "Null", "Key"}, qr.Columns)
	assert.Equal(t, []val.Row{
		{"owner", "VARCHAR(20)", "NO", "PRI"},
		{"n", "INT", "NO", "PRI"},
	}, qr.Rows)
}

func TestEngineTransaction(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	mustExec(t, engine, "BEGIN")
	assert.True(t, engine.InTransaction())
	result := mustExec(t, engine, "INSERT INTO users VALUES (4, 'Dave', 40)")
	assert.True(t, result.(WriteResult).InTransaction)

	// A failing statement leaves the transaction as it was.
	_, err := engine.Execute(ctx, "INSERT INTO users VALUES (5, 'Eve', 20), (4, 'Dup', 1)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)

	_, err = engine.Execute(ctx, "CALL TREEDB_ADD('users')")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	// Other sessions do not see uncommitted writes.
	other := NewEngine(engine.Session(), testIdentity)
	qr := query(t, other, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(3), qr.Rows[0][0])

	qr = query(t, engine, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(4), qr.Rows[0][0])

	mustExec(t, engine, "COMMIT")
	assert.False(t, engine.InTransaction())
	qr = query(t, other, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(4), qr.Rows[0][0])

	mustExec(t, engine, "BEGIN")
	mustExec(t, engine, "DELETE FROM users")
	mustExec(t, engine, "ROLLBACK")
	qr = query(t, engine, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(4), qr.Rows[0][0])

	_, err = engine.Execute(ctx, "COMMIT")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEngineTransactionConflict(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	other := NewEngine(engine.Session(), testIdentity)

	mustExec(t, engine, "BEGIN")
	mustExec(t, engine, "INSERT INTO users VALUES (1, 'Alice', 30)")
	mustExec(t, other, "INSERT INTO users VALUES (2, 'Bob', 25)")

	_, err := engine.Execute(ctx, "COMMIT")
	assert.ErrorIs(t, err, core.ErrConcurrentModification)
	assert.False(t, engine.InTransaction())
	assert.Equal(t, "concurrent_modification", core.ErrorCode(err))
}

func TestEngineConcurrentAutocommit(t *testing.T) {
	engine := setupTestEngine(t)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		session := NewEngine(engine.Session(), testIdentity)
		session.RetryPolicy = func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 500)
		}
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := w*perWriter + i
				_, err := session.Execute(context.Background(),
					fmt.Sprintf("INSERT INTO users VALUES (%d, 'user%d', %d)", id, id, i))
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	qr := query(t, engine, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(writers*perWriter), qr.Rows[0][0])
}

func TestEngineProcedures(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	mustExec(t, engine, "CREATE TABLE other (id INT PRIMARY KEY)")
	insertTestData(t, engine)
	mustExec(t, engine, "INSERT INTO other VALUES (1)")

	_, err := engine.Execute(ctx, "CALL TREEDB_COMMIT('-m', 'nothing staged')")
	assert.ErrorIs(t, err, core.ErrNothingToCommit)

	mustExec(t, engine, "CALL TREEDB_ADD('users')")
	states := tableStates(t, engine)
	assert.Equal(t, ps.Staged, states["users"])
	assert.Equal(t, ps.Modified, states["other"])

	result := mustExec(t, engine, "CALL TREEDB_COMMIT('-m', 'add users')")
	vr := result.(VersionResult)
	assert.Equal(t, "main", vr.Branch)
	assert.Equal(t, "add users", vr.Transaction.Message)
	assert.NotEmpty(t, vr.Transaction.Id)

	// The unstaged table keeps its modification.
	states = tableStates(t, engine)
	assert.Equal(t, ps.Clean, states["users"])
	assert.Equal(t, ps.Modified, states["other"])

	mustExec(t, engine, "CALL TREEDB_COMMIT('-m', 'everything', '-A')")
	states = tableStates(t, engine)
	assert.Equal(t, map[string]ps.TableState{"users": ps.Clean, "other": ps.Clean}, states)

	mustExec(t, engine, "CALL TREEDB_COMMIT('-m', 'empty', '--allow-empty')")
	log, err := engine.Log(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(log), 3)
	assert.Equal(t, "empty", log[0].Message)
	assert.Equal(t, "everything", log[1].Message)

	_, err = engine.Execute(ctx, "CALL TREEDB_FETCH('origin')")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func tableStates(t *testing.T, engine *Engine) map[string]ps.TableState {
	t.Helper()
	status, err := engine.Status(context.Background())
	require.NoError(t, err)
	states := map[string]ps.TableState{}
	for _, s := range status {
		states[s.Name] = s.State
	}
	return states
}

func TestEngineBranchAndMerge(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	insertTestData(t, engine)
	mustExec(t, engine, "CALL TREEDB_COMMIT('-m', 'initial', '-A')")

	mustExec(t, engine, "CREATE BRANCH feature")
	qr := query(t, engine, "SHOW BRANCHES")
	assert.Equal(t, []val.Row{{"feature", false}, {"main", true}}, qr.Rows)

	mustExec(t, engine, "CHECKOUT feature")
	mustExec(t, engine, "INSERT INTO users VALUES (4, 'Dave', 40)")
	mustExec(t, engine, "CALL TREEDB_COMMIT('-m', 'add dave', '-A')")

	mustExec(t, engine, "CHECKOUT main")
	qr = query(t, engine, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(3), qr.Rows[0][0])

	result := mustExec(t, engine, "MERGE feature")
	vr := result.(VersionResult)
	assert.Equal(t, "main", vr.Branch)
	assert.Contains(t, vr.Message, "fast-forwarded")
	qr = query(t, engine, "SELECT COUNT(*) FROM users")
	assert.Equal(t, int64(4), qr.Rows[0][0])

	result = mustExec(t, engine, "MERGE feature")
	assert.Equal(t, "already up to date", result.(VersionResult).Message)

	_, err := engine.Execute(ctx, "MERGE feature WITH sideways")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = engine.Execute(ctx, "CHECKOUT nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestParseMergeStrategy(t *testing.T) {
	tests := map[string]ps.MergeStrategy{
		"":                  ps.MergeStrategyStrict,
		"STRICT":            ps.MergeStrategyStrict,
		"row-level":         ps.MergeStrategyRowLevel,
		"fast-forward-only": ps.MergeStrategyFastForwardOnly,
		"ff":                ps.MergeStrategyFastForwardOnly,
	}
	for name, want := range tests {
		got, err := ParseMergeStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestEngineExecuteScript(t *testing.T) {
	engine := setupTestEngine(t)
	results, err := engine.ExecuteScript(context.Background(), `
		INSERT INTO users VALUES (1, 'Alice', 30);
		-- second row
		INSERT INTO users VALUES (2, 'Bob', 25);
		SELECT * FROM users;`)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, QueryResultType, results[2].Type())

	results, err = engine.ExecuteScript(context.Background(),
		"INSERT INTO users VALUES (3, 'C', 1); INSERT INTO users VALUES (3, 'D', 2); INSERT INTO users VALUES (4, 'E', 3)")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
	assert.Len(t, results, 1)
}

func TestEngineExportImport(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	mustExec(t, engine, `CREATE TABLE characters (name VARCHAR(16), adjective VARCHAR(32),
		id INT PRIMARY KEY, date_of_death DATETIME)`)
	mustExec(t, engine, `INSERT INTO characters VALUES
		('Bilbo', 'tall', 1, NULL),
		('Frodo', 'brave', 2, NULL),
		('Boromir', 'proud', 3, '2019-01-01 12:00:00')`)

	path := filepath.Join(t.TempDir(), "characters.csv")
	result, err := engine.ExportTable(ctx, "characters", path)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordsWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "name,adjective,id,date_of_death", lines[0])
	assert.Equal(t, "Bilbo,tall,1,", lines[1])
	assert.Equal(t, "Boromir,proud,3,2019-01-01 12:00:00", lines[3])

	before := query(t, engine, "SELECT * FROM characters")

	_, err = engine.ImportTable(ctx, "characters", "file://"+path, ImportOptions{})
	assert.ErrorIs(t, err, core.ErrSchemaViolation, "rows already exist")

	result, err = engine.ImportTable(ctx, "characters", path, ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordsWritten)

	after := query(t, engine, "SELECT * FROM characters")
	assert.Equal(t, before.Rows, after.Rows)

	_, err = engine.ImportTable(ctx, "characters", filepath.Join(t.TempDir(), "missing.csv"), ImportOptions{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = engine.ExportTable(ctx, "characters", "https://example.com/out.csv")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEngineImportUpdate(t *testing.T) {
	ctx := context.Background()
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	path := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,age\n1,31\n9,\n"), 0o644))

	result, err := engine.ImportTable(ctx, "users", path, ImportOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsWritten)

	qr := query(t, engine, "SELECT id, name, age FROM users WHERE id IN (1, 9)")
	assert.Equal(t, []val.Row{{int64(1), nil, int64(31)}, {int64(9), nil, nil}}, qr.Rows)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://data/exports/users.csv")
	require.NoError(t, err)
	assert.Equal(t, "data", bucket)
	assert.Equal(t, "exports/users.csv", key)

	_, _, err = parseS3URL("s3://data")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Equal(t, schemeS3, detectScheme("S3://data/x"))
	assert.Equal(t, schemeLocal, detectScheme("/tmp/x.csv"))
}

func TestResultDisplay(t *testing.T) {
	var buf bytes.Buffer
	QueryResult{
		Columns: []string{"id", "name"},
		Rows:    []val.Row{{int64(1), "Alice"}, {int64(20), nil}},
	}.DisplayTo(&buf)
	assert.Equal(t, `+----+-------+
| id | name  |
+----+-------+
|  1 | Alice |
| 20 | NULL  |
+----+-------+
2 rows (<1ms)
`, buf.String())

	buf.Reset()
	WriteResult{RecordsWritten: 1200, InTransaction: true}.DisplayTo(&buf)
	assert.Equal(t, "1,200 record(s) written, pending commit (<1ms)\n", buf.String())
}
