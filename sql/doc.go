// Package sql provides SQL lexing and parsing for TreeDB.
//
// The package includes a lexer that tokenizes SQL strings and a parser
// that turns them into typed statements. Table and column names are single
// identifiers, optionally quoted with backticks.
//
// # Parser Usage
//
//	parser := sql.NewParser("SELECT * FROM characters WHERE id = 1;")
//	statement, err := parser.Parse()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	switch stmt := statement.(type) {
//	case sql.SelectStatement:
//	    ...
//	}
//
// # Supported Statements
//
//   - SelectStatement, InsertStatement, UpdateStatement, DeleteStatement
//   - CreateTableStatement, DropTableStatement
//   - BeginStatement, CommitStatement, RollbackStatement
//   - DescribeStatement, ShowTablesStatement
//   - CreateBranchStatement, CheckoutStatement, MergeStatement, ShowBranchesStatement
//   - CallStatement (TREEDB_ADD, TREEDB_RESET, TREEDB_COMMIT)
package sql
