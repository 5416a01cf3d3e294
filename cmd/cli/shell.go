package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/nickyhof/TreeDB/db"
)

const maxHistory = 1000

var (
	promptColor  = color.New(color.FgCyan, color.Bold)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
)

// shell is the interactive SQL prompt of the sql command.
type shell struct {
	engine      *db.Engine
	out         io.Writer
	history     []string
	historyFile string
}

func newShell(engine *db.Engine, out io.Writer) *shell {
	return &shell{
		engine:  engine,
		out:     out,
		history: make([]string, 0),
	}
}

func (sh *shell) printBanner() {
	fmt.Fprintln(sh.out)
	promptColor.Fprintf(sh.out, "TreeDB %s: version-controlled SQL tables\n", Version)
	fmt.Fprintln(sh.out, "Type .help for commands, .quit to exit")
	fmt.Fprintln(sh.out)
}

// run reads statements from in until EOF or .quit. Statements may span lines
// and end at a semicolon.
func (sh *shell) run(ctx context.Context, in io.Reader) error {
	reader := bufio.NewReader(in)
	var multiLineBuffer strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(sh.out, sh.prompt(multiLineBuffer.Len() > 0))

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			successColor.Fprintln(sh.out, "\nGoodbye!")
			return nil
		}
		input = strings.TrimRight(input, "\r\n")

		if strings.TrimSpace(input) == "" {
			continue
		}

		if multiLineBuffer.Len() == 0 && strings.HasPrefix(input, ".") {
			if quit := sh.handleCommand(ctx, input); quit {
				successColor.Fprintln(sh.out, "Goodbye!")
				return nil
			}
			continue
		}

		multiLineBuffer.WriteString(input)
		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}
		query := strings.TrimSuffix(trimmed, ";")
		multiLineBuffer.Reset()
		if strings.TrimSpace(query) == "" {
			continue
		}

		sh.addToHistory(query + ";")
		result, err := sh.engine.Execute(ctx, query)
		if err != nil {
			sh.printError(err)
			continue
		}
		result.DisplayTo(sh.out)
	}
}

func (sh *shell) prompt(multiLine bool) string {
	if multiLine {
		return promptColor.Sprint("   ...> ")
	}
	txn := ""
	if sh.engine.InTransaction() {
		txn = " txn"
	}
	return promptColor.Sprintf("treedb (%s)%s> ", sh.engine.CurrentBranch(), txn)
}

func (sh *shell) printError(err error) {
	errorColor.Fprintf(sh.out, "✗ Error: %v\n", err)
}

// handleCommand runs a dot command and reports whether the shell should exit.
func (sh *shell) handleCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		return true
	case ".help", ".h", ".?":
		sh.printHelp()
	case ".tables":
		sh.show(ctx, "SHOW TABLES")
	case ".branches":
		sh.show(ctx, "SHOW BRANCHES")
	case ".describe", ".schema":
		if len(parts) < 2 {
			errorColor.Fprintln(sh.out, "✗ Usage: .describe <table>")
			break
		}
		sh.show(ctx, "DESCRIBE "+parts[1])
	case ".status":
		sh.printStatus(ctx)
	case ".clear", ".cls":
		fmt.Fprint(sh.out, "\033[H\033[2J")
	case ".history":
		sh.printHistory()
	case ".version":
		fmt.Fprintf(sh.out, "TreeDB version %s\n", Version)
	case ".import":
		if len(parts) < 2 {
			errorColor.Fprintln(sh.out, "✗ Usage: .import <file.sql>")
			break
		}
		if err := sh.importFile(ctx, parts[1]); err != nil {
			sh.printError(err)
		}
	default:
		errorColor.Fprintf(sh.out, "✗ Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out)
	promptColor.Fprintln(sh.out, "Special Commands:")
	fmt.Fprintln(sh.out, "  .help, .h          Show this help message")
	fmt.Fprintln(sh.out, "  .quit, .exit       Exit the shell")
	fmt.Fprintln(sh.out, "  .tables            List tables")
	fmt.Fprintln(sh.out, "  .describe <table>  Show a table's columns")
	fmt.Fprintln(sh.out, "  .branches          List branches")
	fmt.Fprintln(sh.out, "  .status            Show staged and unstaged tables")
	fmt.Fprintln(sh.out, "  .import <file>     Execute SQL statements from a file")
	fmt.Fprintln(sh.out, "  .history           Show command history")
	fmt.Fprintln(sh.out, "  .clear             Clear the screen")
	fmt.Fprintln(sh.out, "  .version           Show version info")
	fmt.Fprintln(sh.out)
	promptColor.Fprintln(sh.out, "SQL Commands:")
	fmt.Fprintln(sh.out, "  CREATE TABLE [IF NOT EXISTS] <t> (<col> <type> [PRIMARY KEY] [NOT NULL], ...);")
	fmt.Fprintln(sh.out, "  DROP TABLE [IF EXISTS] <t>;")
	fmt.Fprintln(sh.out, "  INSERT INTO <t> [(<cols>)] VALUES (<vals>), ...;")
	fmt.Fprintln(sh.out, "  SELECT [DISTINCT] <cols> FROM <t> [WHERE ...] [GROUP BY ...] [ORDER BY ...] [LIMIT n [OFFSET m]];")
	fmt.Fprintln(sh.out, "  UPDATE <t> SET <col>=<val>, ... [WHERE ...];")
	fmt.Fprintln(sh.out, "  DELETE FROM <t> [WHERE ...];")
	fmt.Fprintln(sh.out, "  DESCRIBE <t>;  SHOW TABLES;")
	fmt.Fprintln(sh.out, "  BEGIN;  COMMIT;  ROLLBACK;")
	fmt.Fprintln(sh.out)
	promptColor.Fprintln(sh.out, "Version Control:")
	fmt.Fprintln(sh.out, "  CALL TREEDB_ADD('<t>' | '-A');  CALL TREEDB_RESET(['<t>']);")
	fmt.Fprintln(sh.out, "  CALL TREEDB_COMMIT('-m', '<message>'[, '--allow-empty']);")
	fmt.Fprintln(sh.out, "  CREATE BRANCH <name>;  CHECKOUT <name>;  MERGE <name>;  SHOW BRANCHES;")
	fmt.Fprintln(sh.out)
}

func (sh *shell) show(ctx context.Context, query string) {
	result, err := sh.engine.Execute(ctx, query)
	if err != nil {
		sh.printError(err)
		return
	}
	result.DisplayTo(sh.out)
}

func (sh *shell) printStatus(ctx context.Context) {
	status, err := sh.engine.Status(ctx)
	if err != nil {
		sh.printError(err)
		return
	}
	for _, s := range status {
		fmt.Fprintf(sh.out, "  %-20s %s\n", s.Name, s.State)
	}
}

func (sh *shell) addToHistory(cmd string) {
	if len(sh.history) > 0 && sh.history[len(sh.history)-1] == cmd {
		return
	}
	sh.history = append(sh.history, cmd)
	if len(sh.history) > maxHistory {
		sh.history = sh.history[len(sh.history)-maxHistory:]
	}
}

func (sh *shell) printHistory() {
	if len(sh.history) == 0 {
		fmt.Fprintln(sh.out, "No command history")
		return
	}
	start := max(0, len(sh.history)-20)
	for i := start; i < len(sh.history); i++ {
		fmt.Fprintf(sh.out, "  %3d  %s\n", i+1, sh.history[i])
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".treedb_history")
}

func (sh *shell) loadHistory() {
	if sh.historyFile == "" {
		return
	}
	file, err := os.Open(sh.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		sh.history = append(sh.history, scanner.Text())
	}
}

func (sh *shell) saveHistory() {
	if sh.historyFile == "" {
		return
	}
	file, err := os.Create(sh.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	start := max(0, len(sh.history)-maxHistory)
	for _, line := range sh.history[start:] {
		_, _ = file.WriteString(line + "\n")
	}
}

// runScript executes statements in order, printing each result, and stops at
// the first failure.
func (sh *shell) runScript(ctx context.Context, script string) error {
	for _, stmt := range splitStatements(script) {
		result, err := sh.engine.Execute(ctx, stmt)
		if err != nil {
			return fmt.Errorf("%s: %w", truncate(stmt, 50), err)
		}
		result.DisplayTo(sh.out)
	}
	return nil
}

// importFile executes every statement of a SQL file with a one line report
// per statement, continuing past failures.
func (sh *shell) importFile(ctx context.Context, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	successCount, errorCount := 0, 0
	for i, stmt := range splitStatements(string(data)) {
		result, err := sh.engine.Execute(ctx, stmt)
		if err != nil {
			errorColor.Fprintf(sh.out, "[%d] ✗ %s\n", i+1, truncate(stmt, 50))
			fmt.Fprintf(sh.out, "      Error: %v\n", err)
			errorCount++
			continue
		}
		successCount++
		successColor.Fprintf(sh.out, "[%d] ✓ %s%s\n", i+1, truncate(stmt, 50), summarize(result))
	}

	successColor.Fprintf(sh.out, "\n✓ Import complete: %d succeeded, %d failed\n", successCount, errorCount)
	return nil
}

func summarize(result db.Result) string {
	switch r := result.(type) {
	case db.WriteResult:
		var details []string
		if r.TablesCreated > 0 {
			details = append(details, fmt.Sprintf("%d table created", r.TablesCreated))
		}
		if r.TablesDeleted > 0 {
			details = append(details, fmt.Sprintf("%d table deleted", r.TablesDeleted))
		}
		if r.RecordsWritten > 0 {
			details = append(details, fmt.Sprintf("%d written", r.RecordsWritten))
		}
		if r.RecordsDeleted > 0 {
			details = append(details, fmt.Sprintf("%d deleted", r.RecordsDeleted))
		}
		if len(details) == 0 {
			return ""
		}
		return " (" + strings.Join(details, ", ") + ")"
	case db.QueryResult:
		return fmt.Sprintf(" (%d rows)", r.RecordsRead)
	case db.VersionResult:
		return " (" + r.Message + ")"
	}
	return ""
}

// splitStatements splits SQL text at semicolons outside quotes and drops
// "--" comments.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	quote := byte(0)

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if ch == '\'' || ch == '"' || ch == '`' {
			if !inString {
				inString = true
				quote = ch
			} else if ch == quote {
				inString = false
			}
		}

		if !inString && ch == '-' && i+1 < len(content) && content[i+1] == '-' {
			for i < len(content) && content[i] != '\n' {
				i++
			}
			current.WriteByte(' ')
			continue
		}

		if !inString && ch == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
