package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/op"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/sql"
)

// Engine executes SQL against the working set of the branch its persistence
// handle is bound to. An Engine is not safe for concurrent use; give each
// client its own engine over a ps session.
type Engine struct {
	*ps.Persistence
	QueryContext

	log logrus.FieldLogger
	// txn is the batch of an open BEGIN ... COMMIT block.
	txn *ps.Batch
}

type QueryContext struct {
	Identity core.Identity
	// Remote configures s3:// access for table import and export.
	Remote *S3Config
	// RetryPolicy builds the backoff used when an autocommit write loses a
	// race for the working root.
	RetryPolicy func() backoff.BackOff
}

func NewEngine(persistence *ps.Persistence, identity core.Identity) *Engine {
	return &Engine{
		Persistence:  persistence,
		QueryContext: QueryContext{Identity: identity},
		log:          persistence.Logger().WithField("component", "engine"),
	}
}

func defaultRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 20)
}

// InTransaction reports whether a BEGIN block is open.
func (engine *Engine) InTransaction() bool {
	return engine.txn != nil
}

// Execute parses and runs one statement.
func (engine *Engine) Execute(ctx context.Context, query string) (Result, error) {
	parser := sql.NewParser(query)
	statement, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	return engine.ExecuteStatement(ctx, statement)
}

// ExecuteScript runs semicolon separated statements in order and stops at
// the first failure. Results of the statements that ran are returned.
func (engine *Engine) ExecuteScript(ctx context.Context, script string) ([]Result, error) {
	statements, err := sql.NewParser(script).ParseScript()
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(statements))
	for i, statement := range statements {
		result, err := engine.ExecuteStatement(ctx, statement)
		if err != nil {
			return results, fmt.Errorf("statement %d: %w", i+1, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (engine *Engine) ExecuteStatement(ctx context.Context, statement sql.Statement) (Result, error) {
	startTime := time.Now()
	result, err := engine.dispatch(ctx, statement)
	if err != nil {
		engine.log.WithError(err).WithField("statement", statement.Type()).Debug("statement failed")
		return nil, err
	}
	engine.log.WithFields(logrus.Fields{
		"statement": statement.Type(),
		"elapsed":   time.Since(startTime),
	}).Debug("statement executed")
	return result, nil
}

func (engine *Engine) dispatch(ctx context.Context, statement sql.Statement) (Result, error) {
	switch stmt := statement.(type) {
	case sql.SelectStatement:
		return engine.executeSelectStatement(ctx, stmt)
	case sql.InsertStatement:
		return engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
			return engine.executeInsertStatement(ctx, sink, stmt, result)
		})
	case sql.UpdateStatement:
		return engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
			return engine.executeUpdateStatement(ctx, sink, stmt, result)
		})
	case sql.DeleteStatement:
		return engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
			return engine.executeDeleteStatement(ctx, sink, stmt, result)
		})
	case sql.CreateTableStatement:
		return engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
			return engine.executeCreateTableStatement(ctx, sink, stmt, result)
		})
	case sql.DropTableStatement:
		return engine.write(ctx, func(sink op.TableSink, result *WriteResult) error {
			return engine.executeDropTableStatement(ctx, sink, stmt, result)
		})
	case sql.BeginStatement:
		return engine.executeBeginStatement(ctx)
	case sql.CommitStatement:
		return engine.executeCommitStatement(ctx)
	case sql.RollbackStatement:
		return engine.executeRollbackStatement()
	case sql.DescribeStatement:
		return engine.executeDescribeStatement(ctx, stmt)
	case sql.ShowTablesStatement:
		return engine.executeShowTablesStatement(ctx)
	case sql.ShowBranchesStatement:
		return engine.executeShowBranchesStatement(ctx)
	case sql.CreateBranchStatement:
		return engine.executeCreateBranchStatement(ctx, stmt)
	case sql.CheckoutStatement:
		return engine.executeCheckoutStatement(ctx, stmt)
	case sql.MergeStatement:
		return engine.executeMergeStatement(ctx, stmt)
	case sql.CallStatement:
		return engine.executeCallStatement(ctx, stmt)
	default:
		return nil, fmt.Errorf("%w: unsupported statement type: %v", core.ErrInvalidArgument, statement.Type())
	}
}

// source returns what reads see: the open transaction, or else the current
// working root.
func (engine *Engine) source(ctx context.Context) (op.TableSource, error) {
	if engine.txn != nil {
		return engine.txn, nil
	}
	ws, err := engine.WorkingSet(ctx)
	if err != nil {
		return nil, err
	}
	return engine.View(ctx, ws.Working)
}

type writeFunc func(sink op.TableSink, result *WriteResult) error

// write runs fn against the open transaction, or in its own batch that is
// published with a compare-and-swap. A batch that loses the race is rebuilt
// on the new working root and retried with backoff.
func (engine *Engine) write(ctx context.Context, fn writeFunc) (WriteResult, error) {
	startTime := time.Now()
	if engine.txn != nil {
		result := WriteResult{InTransaction: true}
		// Statements inside a transaction apply to a copy so that a failing
		// statement leaves the transaction as it was.
		scratch := engine.txn.Fork()
		if err := fn(scratch, &result); err != nil {
			return WriteResult{}, err
		}
		engine.txn = scratch
		result.ExecutionTimeSec = time.Since(startTime).Seconds()
		return result, nil
	}

	policy := engine.RetryPolicy
	if policy == nil {
		policy = defaultRetryPolicy
	}

	var result WriteResult
	attempts := 0
	operation := func() error {
		attempts++
		result = WriteResult{}
		batch, err := engine.BeginBatch(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(batch, &result); err != nil {
			batch.Rollback()
			return backoff.Permanent(err)
		}
		engine.log.WithField("operations", batch.OperationCount()).Debug("publishing batch")
		root, err := batch.Apply(ctx)
		if err != nil {
			if core.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result.Root = root
		return nil
	}
	notify := func(err error, wait time.Duration) {
		engine.log.WithError(err).WithField("retry_in", wait).Warn("working root moved, retrying statement")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy(), ctx), notify); err != nil {
		return WriteResult{}, err
	}
	result.Attempts = attempts
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}

func (engine *Engine) executeBeginStatement(ctx context.Context) (Result, error) {
	if engine.txn != nil {
		return nil, fmt.Errorf("%w: transaction already open", core.ErrInvalidArgument)
	}
	batch, err := engine.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	engine.txn = batch
	return WriteResult{InTransaction: true}, nil
}

// executeCommitStatement publishes the open transaction. If another writer
// moved the working root meanwhile the transaction is discarded and the
// commit fails with core.ErrConcurrentModification.
func (engine *Engine) executeCommitStatement(ctx context.Context) (Result, error) {
	if engine.txn == nil {
		return nil, fmt.Errorf("%w: no open transaction", core.ErrInvalidArgument)
	}
	startTime := time.Now()
	batch := engine.txn
	engine.txn = nil
	root, err := batch.Apply(ctx)
	if err != nil {
		return nil, err
	}
	return WriteResult{Root: root, ExecutionTimeSec: time.Since(startTime).Seconds()}, nil
}

func (engine *Engine) executeRollbackStatement() (Result, error) {
	if engine.txn == nil {
		return nil, fmt.Errorf("%w: no open transaction", core.ErrInvalidArgument)
	}
	engine.txn.Rollback()
	engine.txn = nil
	return WriteResult{}, nil
}

// versionStatement rejects version control statements inside a transaction.
func (engine *Engine) versionStatement(name string) error {
	if engine.txn != nil {
		return fmt.Errorf("%w: %s is not allowed inside a transaction", core.ErrInvalidArgument, name)
	}
	return nil
}

func (engine *Engine) executeCreateBranchStatement(ctx context.Context, statement sql.CreateBranchStatement) (Result, error) {
	if err := engine.versionStatement("CREATE BRANCH"); err != nil {
		return nil, err
	}
	var from *ps.Transaction
	if statement.From != "" {
		from = &ps.Transaction{Id: statement.From}
	}
	if err := engine.Branch(ctx, statement.Name, from); err != nil {
		return nil, err
	}
	return engine.versionResult(ctx, fmt.Sprintf("created branch %s", statement.Name))
}

func (engine *Engine) executeCheckoutStatement(ctx context.Context, statement sql.CheckoutStatement) (Result, error) {
	if err := engine.versionStatement("CHECKOUT"); err != nil {
		return nil, err
	}
	if err := engine.Checkout(ctx, statement.Branch); err != nil {
		return nil, err
	}
	return engine.versionResult(ctx, fmt.Sprintf("switched to branch %s", statement.Branch))
}

// ParseMergeStrategy maps a strategy name to a merge strategy. The empty
// name selects the default.
func ParseMergeStrategy(name string) (ps.MergeStrategy, error) {
	switch strings.ToLower(name) {
	case "":
		return ps.DefaultMergeOptions().Strategy, nil
	case "strict":
		return ps.MergeStrategyStrict, nil
	case "row-level", "theirs-newer", "newer":
		return ps.MergeStrategyRowLevel, nil
	case "fast-forward-only", "ff-only", "ff":
		return ps.MergeStrategyFastForwardOnly, nil
	default:
		return "", fmt.Errorf("%w: unknown merge strategy %q", core.ErrInvalidArgument, name)
	}
}

func (engine *Engine) executeMergeStatement(ctx context.Context, statement sql.MergeStatement) (Result, error) {
	if err := engine.versionStatement("MERGE"); err != nil {
		return nil, err
	}
	opts := ps.DefaultMergeOptions()
	strategy, err := ParseMergeStrategy(statement.Strategy)
	if err != nil {
		return nil, err
	}
	opts.Strategy = strategy

	merged, err := engine.Merge(ctx, statement.SourceBranch, engine.Identity, opts)
	if err != nil {
		return nil, err
	}
	message := fmt.Sprintf("merged %s, %d row(s)", statement.SourceBranch, merged.MergedRows)
	switch {
	case merged.UpToDate:
		message = "already up to date"
	case merged.FastForward:
		message = fmt.Sprintf("fast-forwarded to %s", statement.SourceBranch)
	}
	return VersionResult{
		Branch:      engine.CurrentBranch(),
		Transaction: merged.Transaction,
		Message:     message,
		Conflicts:   len(merged.Conflicts),
	}, nil
}

func (engine *Engine) executeShowBranchesStatement(ctx context.Context) (Result, error) {
	startTime := time.Now()
	branches, err := engine.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	current := engine.CurrentBranch()
	result := QueryResult{Columns: []string{"name", "current"}}
	for _, branch := range branches {
		result.Rows = append(result.Rows, []any{branch, branch == current})
	}
	result.RecordsRead = len(result.Rows)
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}

func (engine *Engine) executeCallStatement(ctx context.Context, statement sql.CallStatement) (Result, error) {
	if err := engine.versionStatement("CALL"); err != nil {
		return nil, err
	}
	switch statement.Procedure {
	case "TREEDB_ADD":
		tables := tableArgs(statement.Args)
		if len(tables) == 0 {
			return nil, fmt.Errorf("%w: TREEDB_ADD needs a table name or '-A'", core.ErrInvalidArgument)
		}
		if err := engine.Add(ctx, tables...); err != nil {
			return nil, err
		}
		return engine.versionResult(ctx, "staged "+strings.Join(tables, ", "))
	case "TREEDB_RESET":
		tables := tableArgs(statement.Args)
		if err := engine.Reset(ctx, tables...); err != nil {
			return nil, err
		}
		return engine.versionResult(ctx, "unstaged changes")
	case "TREEDB_COMMIT":
		return engine.executeCommitProcedure(ctx, statement.Args)
	default:
		return nil, fmt.Errorf("%w: unknown procedure %s", core.ErrNotFound, statement.Procedure)
	}
}

// tableArgs maps procedure arguments to table names; -A and --all select
// every table.
func tableArgs(args []string) []string {
	tables := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg {
		case "-A", "-a", "--all":
			tables = append(tables, "*")
		default:
			tables = append(tables, arg)
		}
	}
	return tables
}

// executeCommitProcedure handles TREEDB_COMMIT('-m', msg[, '--allow-empty'][, '-A']).
func (engine *Engine) executeCommitProcedure(ctx context.Context, args []string) (Result, error) {
	var message string
	var opts ps.CommitOptions
	addAll := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-m", "--message":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%w: %s needs a message", core.ErrInvalidArgument, args[i])
			}
			i++
			message = args[i]
		case "--allow-empty":
			opts.AllowEmpty = true
		case "-A", "-a", "--all":
			addAll = true
		default:
			if strings.HasPrefix(args[i], "-") {
				return nil, fmt.Errorf("%w: unknown TREEDB_COMMIT flag %s", core.ErrInvalidArgument, args[i])
			}
			message = args[i]
		}
	}
	if message == "" {
		return nil, fmt.Errorf("%w: commit message is required", core.ErrInvalidArgument)
	}
	if addAll {
		if err := engine.Add(ctx, "*"); err != nil {
			return nil, err
		}
	}
	txn, err := engine.Commit(ctx, message, engine.Identity, opts)
	if err != nil {
		return nil, err
	}
	return VersionResult{
		Branch:      engine.CurrentBranch(),
		Transaction: txn,
		Message:     "committed " + txn.Id,
	}, nil
}

func (engine *Engine) versionResult(ctx context.Context, message string) (Result, error) {
	txn, err := engine.LatestTransaction(ctx)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return VersionResult{Branch: engine.CurrentBranch(), Transaction: txn, Message: message}, nil
}
