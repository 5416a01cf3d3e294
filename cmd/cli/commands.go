package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/attic-labs/kingpin"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-git/go-billy/v6/osfs"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/op"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/val"
)

func registerInit(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("init", "Create an empty repository in --repo-dir.")
	backend := cmd.Flag("backend", "chunk store backend").Default(ps.BackendFile).Enum(ps.BackendFile, ps.BackendBadger, ps.BackendS3)
	compression := cmd.Flag("compression", "chunk compression").Default("zstd").Enum("zstd", "none")
	bucket := cmd.Flag("s3-bucket", "bucket for the s3 backend").String()
	prefix := cmd.Flag("s3-prefix", "key prefix for the s3 backend").String()
	region := cmd.Flag("s3-region", "region for the s3 backend").String()
	endpoint := cmd.Flag("s3-endpoint", "endpoint override for s3 compatible stores").String()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		cfg := config.Default()
		cfg.User = c.identity(cfg.User)
		cfg.Storage.Backend = *backend
		cfg.Storage.Compression = *compression
		cfg.Storage.S3 = config.S3Config{Bucket: *bucket, Prefix: *prefix, Region: *region, Endpoint: *endpoint}
		if cfg.Storage.Backend == ps.BackendS3 && cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("%w: the s3 backend needs --s3-bucket", core.ErrInvalidArgument)
		}

		instance, err := TreeDB.Init(ctx, *c.repoDir, cfg, c.log)
		if err != nil {
			return err
		}
		c.instance = instance
		c.success("Initialized empty TreeDB repository in %s", instance.Persistence.Dir())
		return nil
	}
}

func registerSQL(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("sql", "Run SQL. Starts an interactive shell when neither -q nor -f is given.")
	query := cmd.Flag("query", "statements to run").Short('q').String()
	file := cmd.Flag("file", "file of statements to run").Short('f').String()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		sh := newShell(engine, c.out)
		switch {
		case *query != "":
			return sh.runScript(ctx, *query)
		case *file != "":
			data, err := os.ReadFile(*file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", *file, err)
			}
			return sh.runScript(ctx, string(data))
		default:
			sh.historyFile = historyPath()
			sh.loadHistory()
			defer sh.saveHistory()
			sh.printBanner()
			return sh.run(ctx, c.in)
		}
	}
}

func registerAdd(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("add", "Stage tables for the next commit. '.' or '*' stages every table.")
	tables := cmd.Arg("table", "tables to stage").Required().Strings()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		names := allTables(*tables)
		if err := engine.Add(ctx, names...); err != nil {
			return err
		}
		c.success("staged %s", strings.Join(names, ", "))
		return nil
	}
}

func registerReset(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("reset", "Unstage tables. Without arguments every table is unstaged.")
	tables := cmd.Arg("table", "tables to unstage").Strings()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		if err := engine.Reset(ctx, allTables(*tables)...); err != nil {
			return err
		}
		c.success("unstaged changes")
		return nil
	}
}

// allTables maps the shell style "." to the all tables wildcard.
func allTables(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		if name == "." {
			name = "*"
		}
		out[i] = name
	}
	return out
}

func registerCommit(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("commit", "Record the staged tables as a new commit.")
	message := cmd.Flag("message", "commit message").Short('m').Required().String()
	allowEmpty := cmd.Flag("allow-empty", "commit even when nothing is staged").Bool()
	all := cmd.Flag("all", "stage every table first").Short('a').Bool()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		if *all {
			if err := engine.Add(ctx, "*"); err != nil {
				return err
			}
		}
		txn, err := engine.Commit(ctx, *message, engine.Identity, ps.CommitOptions{AllowEmpty: *allowEmpty})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "[%s %s] %s\n", engine.CurrentBranch(), color.YellowString(shortHash(txn.Id)), txn.Message)
		return nil
	}
}

func shortHash(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func registerLog(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("log", "Show the commit history of the current branch.")
	n := cmd.Flag("max-commits", "number of commits to show, 0 for all").Short('n').Default("0").Int()
	oneline := cmd.Flag("oneline", "show one line per commit").Bool()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		txns, err := engine.Log(ctx, *n)
		if err != nil {
			return err
		}
		for _, txn := range txns {
			if *oneline {
				fmt.Fprintf(c.out, "%s %s\n", color.YellowString(shortHash(txn.Id)), txn.Message)
				continue
			}
			fmt.Fprintln(c.out, color.YellowString("commit %s", txn.Id))
			if len(txn.Parents) > 1 {
				parents := make([]string, len(txn.Parents))
				for i, p := range txn.Parents {
					parents[i] = shortHash(p)
				}
				fmt.Fprintf(c.out, "Merge:  %s\n", strings.Join(parents, " "))
			}
			fmt.Fprintf(c.out, "Author: %s\n", txn.Author)
			fmt.Fprintf(c.out, "Date:   %s (%s)\n\n", txn.When.Format("Mon Jan 2 15:04:05 2006 -0700"), humanize.Time(txn.When))
			fmt.Fprintf(c.out, "    %s\n\n", txn.Message)
		}
		return nil
	}
}

func registerStatus(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("status", "Show the staging state of every table.")

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		status, err := engine.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "On branch %s\n", engine.CurrentBranch())
		var staged, unstaged []string
		for _, s := range status {
			var label string
			switch {
			case s.New:
				label = "new table:      " + s.Name
			case s.Deleted:
				label = "deleted table:  " + s.Name
			default:
				label = "modified:       " + s.Name
			}
			switch s.State {
			case ps.Staged:
				staged = append(staged, label)
			case ps.Modified:
				unstaged = append(unstaged, label)
			case ps.StagedAndModified:
				staged = append(staged, label)
				unstaged = append(unstaged, "modified:       "+s.Name)
			}
		}
		if len(staged) == 0 && len(unstaged) == 0 {
			fmt.Fprintln(c.out, "nothing to commit, working set clean")
			return nil
		}
		if len(staged) > 0 {
			fmt.Fprintln(c.out, "\nChanges to be committed:")
			for _, line := range staged {
				fmt.Fprintln(c.out, "\t"+color.GreenString(line))
			}
		}
		if len(unstaged) > 0 {
			fmt.Fprintln(c.out, "\nChanges not staged for commit:")
			for _, line := range unstaged {
				fmt.Fprintln(c.out, "\t"+color.RedString(line))
			}
		}
		return nil
	}
}

func registerBranch(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("branch", "List branches, or create one at the current head.")
	name := cmd.Arg("name", "branch to create").String()
	remove := cmd.Flag("delete", "delete the named branch").Short('d').Bool()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		switch {
		case *remove:
			if *name == "" {
				return fmt.Errorf("%w: branch -d needs a branch name", core.ErrInvalidArgument)
			}
			if err := engine.DeleteBranch(ctx, *name); err != nil {
				return err
			}
			c.success("deleted branch %s", *name)
		case *name != "":
			if err := engine.Branch(ctx, *name, nil); err != nil {
				return err
			}
			c.success("created branch %s", *name)
		default:
			branches, err := engine.ListBranches(ctx)
			if err != nil {
				return err
			}
			current := engine.CurrentBranch()
			for _, branch := range branches {
				if branch == current {
					fmt.Fprintf(c.out, "* %s\n", color.GreenString(branch))
				} else {
					fmt.Fprintf(c.out, "  %s\n", branch)
				}
			}
		}
		return nil
	}
}

func registerCheckout(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("checkout", "Switch the repository to another branch.")
	name := cmd.Arg("name", "branch to switch to").Required().String()
	create := cmd.Flag("create", "create the branch first").Short('b').Bool()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		if *create {
			if err := engine.Branch(ctx, *name, nil); err != nil {
				return err
			}
		}
		if err := engine.Checkout(ctx, *name); err != nil {
			return err
		}
		c.success("switched to branch %s", *name)
		return nil
	}
}

func registerMerge(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("merge", "Merge a branch into the current branch.")
	source := cmd.Arg("name", "branch or commit to merge").Required().String()
	strategy := cmd.Flag("strategy", "strict, row-level or ff-only").Short('s').String()
	message := cmd.Flag("message", "merge commit message").Short('m').String()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		opts := ps.DefaultMergeOptions()
		if opts.Strategy, err = db.ParseMergeStrategy(*strategy); err != nil {
			return err
		}
		opts.Message = *message
		merged, err := engine.Merge(ctx, *source, engine.Identity, opts)
		if err != nil {
			return err
		}
		switch {
		case merged.UpToDate:
			fmt.Fprintln(c.out, "Already up to date.")
		case merged.FastForward:
			fmt.Fprintf(c.out, "Fast-forward to %s\n", color.YellowString(shortHash(merged.Transaction.Id)))
		default:
			fmt.Fprintf(c.out, "Merged %s: %d row(s), commit %s\n", *source, merged.MergedRows,
				color.YellowString(shortHash(merged.Transaction.Id)))
			if len(merged.Conflicts) > 0 {
				fmt.Fprintf(c.out, "%d conflicting row(s) resolved\n", len(merged.Conflicts))
			}
		}
		return nil
	}
}

func registerDiff(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("diff", "Show row changes between the head commit and the working set.")
	table := cmd.Arg("table", "limit the diff to one table").String()
	staged := cmd.Flag("staged", "diff the staged root instead of the working root").Bool()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		ws, err := engine.WorkingSet(ctx)
		if err != nil {
			return err
		}
		to := ws.Working
		if *staged {
			to = ws.Staged
		}

		deltas, err := engine.TableDeltas(ctx, ws.HeadRoot, to)
		if err != nil {
			return err
		}
		for _, delta := range deltas {
			if *table != "" && delta.Name != *table {
				continue
			}
			fmt.Fprintln(c.out, color.New(color.Bold).Sprintf("diff %s%s", delta.Name, deltaLabel(delta)))
			err := engine.DiffTable(ctx, ws.HeadRoot, to, delta.Name, func(d ps.RowDiff) error {
				printRowDiff(c, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func deltaLabel(delta ps.TableDelta) string {
	switch {
	case delta.Added:
		return " (new table)"
	case delta.Dropped:
		return " (dropped)"
	case delta.SchemaChanged:
		return " (schema changed)"
	}
	return ""
}

func formatRow(row val.Row) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = val.Format(cell)
	}
	return "(" + strings.Join(cells, ", ") + ")"
}

func printRowDiff(c *cli, d ps.RowDiff) {
	switch d.Type {
	case prolly.AddedDiff:
		fmt.Fprintln(c.out, color.GreenString("+ %s", formatRow(d.To)))
	case prolly.RemovedDiff:
		fmt.Fprintln(c.out, color.RedString("- %s", formatRow(d.From)))
	default:
		fmt.Fprintln(c.out, color.RedString("- %s", formatRow(d.From)))
		fmt.Fprintln(c.out, color.GreenString("+ %s", formatRow(d.To)))
	}
}

func registerTable(app *kingpin.Application, c *cli, handlers map[string]handler) {
	table := app.Command("table", "List tables and move table data in and out of CSV files.")

	list := table.Command("list", "List tables with their row counts, in the working set or at a commit.")
	ref := list.Arg("ref", "branch, commit hash or HEAD~n").String()
	handlers[list.FullCommand()] = func(ctx context.Context) error {
		instance, err := c.open(ctx)
		if err != nil {
			return err
		}
		root, err := rootAt(ctx, instance.Persistence, *ref)
		if err != nil {
			return err
		}
		dbOp, err := op.GetDatabase(ctx, instance.Persistence, root)
		if err != nil {
			return err
		}
		tables, err := dbOp.Tables(ctx)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			fmt.Fprintln(c.out, "no tables")
			return nil
		}
		for _, t := range tables {
			fmt.Fprintf(c.out, "%-24s %s row(s)\n", t.Table.Name, humanize.Comma(int64(t.Count())))
		}
		return nil
	}

	export := table.Command("export", "Write a table to a CSV file, http(s):// or s3:// URL.")
	exportName := export.Arg("table", "table to export").Required().String()
	dest := export.Arg("dest", "destination path or URL").Required().String()
	handlers[export.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		result, err := engine.ExportTable(ctx, *exportName, *dest)
		if err != nil {
			return err
		}
		c.success("exported %s row(s) from %s to %s", humanize.Comma(int64(result.RecordsWritten)), *exportName, *dest)
		return nil
	}

	imp := table.Command("import", "Load rows from a CSV file, http(s):// or s3:// URL into a table.")
	importName := imp.Arg("table", "table to import into").Required().String()
	src := imp.Arg("src", "source path or URL").Required().String()
	replace := imp.Flag("replace", "truncate the table first").Short('r').Bool()
	update := imp.Flag("update", "overwrite rows whose key already exists").Short('u').Bool()
	handlers[imp.FullCommand()] = func(ctx context.Context) error {
		engine, err := c.engine(ctx)
		if err != nil {
			return err
		}
		result, err := engine.ImportTable(ctx, *importName, *src, db.ImportOptions{Replace: *replace, Update: *update})
		if err != nil {
			return err
		}
		c.success("imported %s row(s) into %s", humanize.Comma(int64(result.RecordsWritten)), *importName)
		return nil
	}
}

// rootAt returns the working root for an empty ref, else the root of the
// commit ref names.
func rootAt(ctx context.Context, p *ps.Persistence, ref string) (hash.Hash, error) {
	if ref == "" {
		ws, err := p.WorkingSet(ctx)
		if err != nil {
			return hash.Hash{}, err
		}
		return ws.Working, nil
	}
	h, err := p.ResolveRef(ctx, ref)
	if err != nil {
		return hash.Hash{}, err
	}
	commit, err := p.Commits().ReadCommit(ctx, h)
	if err != nil {
		return hash.Hash{}, err
	}
	return commit.Root, nil
}

func registerGC(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("gc", "Delete chunks no branch or working set can reach.")

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		instance, err := c.open(ctx)
		if err != nil {
			return err
		}
		stats, err := instance.Persistence.GC(ctx)
		if err != nil {
			return err
		}
		c.success("gc: %s", stats)
		return nil
	}
}

func registerGitExport(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("git-export", "Mirror every branch into a bare git repository.")
	dir := cmd.Arg("dir", "git repository directory").Required().String()

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		instance, err := c.open(ctx)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			return err
		}
		stats, err := instance.Persistence.ExportGit(ctx, osfs.New(*dir))
		if err != nil {
			return err
		}
		c.success("exported %d commit(s) on %d branch(es) to %s", stats.Commits, stats.Branches, *dir)
		return nil
	}
}

func registerVersion(app *kingpin.Application, c *cli, handlers map[string]handler) {
	cmd := app.Command("version", "Print the version.")

	handlers[cmd.FullCommand()] = func(ctx context.Context) error {
		fmt.Fprintf(c.out, "treedb version %s\n", Version)
		return nil
	}
}
