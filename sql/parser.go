package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nickyhof/TreeDB/core"
)

// ErrSyntax marks statements the parser rejects.
var ErrSyntax = fmt.Errorf("syntax error: %w", core.ErrInvalidArgument)

type StatementType int

const (
	SelectStatementType StatementType = iota
	InsertStatementType
	UpdateStatementType
	DeleteStatementType
	CreateTableStatementType
	DropTableStatementType
	BeginStatementType
	CommitStatementType
	RollbackStatementType
	DescribeStatementType
	ShowTablesStatementType
	CreateBranchStatementType
	CheckoutStatementType
	MergeStatementType
	ShowBranchesStatementType
	CallStatementType
)

var statementNames = map[StatementType]string{
	SelectStatementType:       "SELECT",
	InsertStatementType:       "INSERT",
	UpdateStatementType:       "UPDATE",
	DeleteStatementType:       "DELETE",
	CreateTableStatementType:  "CREATE TABLE",
	DropTableStatementType:    "DROP TABLE",
	BeginStatementType:        "BEGIN",
	CommitStatementType:       "COMMIT",
	RollbackStatementType:     "ROLLBACK",
	DescribeStatementType:     "DESCRIBE",
	ShowTablesStatementType:   "SHOW TABLES",
	CreateBranchStatementType: "CREATE BRANCH",
	CheckoutStatementType:     "CHECKOUT",
	MergeStatementType:        "MERGE",
	ShowBranchesStatementType: "SHOW BRANCHES",
	CallStatementType:         "CALL",
}

func (t StatementType) String() string {
	if name, ok := statementNames[t]; ok {
		return name
	}
	return fmt.Sprintf("StatementType(%d)", int(t))
}

type Statement interface {
	Type() StatementType
}

type ValueKind int

const (
	StringValue ValueKind = iota
	NumberValue
	BoolValue
	NullValue
)

// Value is a literal as written in a statement. The executor converts it to
// the type of the column it is compared with or stored in.
type Value struct {
	Kind ValueKind
	Text string
}

// Literal returns the value as nil, string, int64, float64 or bool.
func (v Value) Literal() any {
	switch v.Kind {
	case NullValue:
		return nil
	case BoolValue:
		return strings.EqualFold(v.Text, "true")
	case NumberValue:
		if i, err := strconv.ParseInt(v.Text, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v.Text, 64); err == nil {
			return f
		}
		return v.Text
	default:
		return v.Text
	}
}

func (v Value) String() string {
	switch v.Kind {
	case NullValue:
		return "NULL"
	case StringValue:
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
	default:
		return v.Text
	}
}

// SelectStatement reads rows from one table. With no Columns and no
// Aggregates it selects every column. A Limit of 0 means no limit.
type SelectStatement struct {
	Table      string
	Columns    []string
	Aggregates []AggregateExpr
	Distinct   bool
	Where      WhereClause
	GroupBy    []string
	OrderBy    []OrderByClause
	Limit      int
	Offset     int
}

type AggregateExpr struct {
	Function string // COUNT, SUM, AVG, MIN, MAX
	Column   string // "*" for COUNT(*)
	Alias    string
}

// Name is the result column heading.
func (agg AggregateExpr) Name() string {
	if agg.Alias != "" {
		return agg.Alias
	}
	return agg.Function + "(" + agg.Column + ")"
}

type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]Value
}

type UpdateStatement struct {
	Table   string
	Updates []SetClause
	Where   WhereClause
}

type SetClause struct {
	Column string
	Value  Value
}

type DeleteStatement struct {
	Table string
	Where WhereClause
}

type CreateTableStatement struct {
	Table       string
	IfNotExists bool
	Columns     []core.Column
}

type DropTableStatement struct {
	Table    string
	IfExists bool
}

type ShowTablesStatement struct{}

type WhereClause struct {
	Conditions []WhereCondition
	LogicalOps []LogicalOperator // AND/OR between conditions
}

func (where WhereClause) IsEmpty() bool {
	return len(where.Conditions) == 0
}

type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

type WhereCondition struct {
	Left     string
	Operator WhereOperator
	Right    Value
	InValues []Value // for IN operator
	Negated  bool    // for NOT
}

type WhereOperator int

const (
	EqualsOperator WhereOperator = iota
	NotEqualsOperator
	LessThanOperator
	GreaterThanOperator
	LessThanOrEqualOperator
	GreaterThanOrEqualOperator
	LikeOperator
	IsNullOperator
	IsNotNullOperator
	InOperator
)

type OrderByClause struct {
	Column     string
	Descending bool
}

type BeginStatement struct{}
type CommitStatement struct{}
type RollbackStatement struct{}

type DescribeStatement struct {
	Table string
}

// Branch statements
type CreateBranchStatement struct {
	Name string
	From string // Optional: branch name or commit hash
}

type CheckoutStatement struct {
	Branch string
}

type MergeStatement struct {
	SourceBranch string
	Strategy     string // empty for the default strategy
}

type ShowBranchesStatement struct{}

// CallStatement invokes a version control procedure such as TREEDB_COMMIT.
type CallStatement struct {
	Procedure string // upper case
	Args      []string
}

func (s SelectStatement) Type() StatementType       { return SelectStatementType }
func (s InsertStatement) Type() StatementType       { return InsertStatementType }
func (s UpdateStatement) Type() StatementType       { return UpdateStatementType }
func (s DeleteStatement) Type() StatementType       { return DeleteStatementType }
func (s CreateTableStatement) Type() StatementType  { return CreateTableStatementType }
func (s DropTableStatement) Type() StatementType    { return DropTableStatementType }
func (s BeginStatement) Type() StatementType        { return BeginStatementType }
func (s CommitStatement) Type() StatementType       { return CommitStatementType }
func (s RollbackStatement) Type() StatementType     { return RollbackStatementType }
func (s DescribeStatement) Type() StatementType     { return DescribeStatementType }
func (s ShowTablesStatement) Type() StatementType   { return ShowTablesStatementType }
func (s CreateBranchStatement) Type() StatementType { return CreateBranchStatementType }
func (s CheckoutStatement) Type() StatementType     { return CheckoutStatementType }
func (s MergeStatement) Type() StatementType        { return MergeStatementType }
func (s ShowBranchesStatement) Type() StatementType { return ShowBranchesStatementType }
func (s CallStatement) Type() StatementType         { return CallStatementType }

type Parser struct {
	lexer *Lexer
}

func NewParser(sql string) *Parser {
	lexer := NewLexer(sql)
	return &Parser{lexer: lexer}
}

// Parse parses exactly one statement with an optional trailing semicolon.
func (parser *Parser) Parse() (Statement, error) {
	statement, err := parser.parseStatement()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	parser.accept(Semicolon)
	if token := parser.lexer.NextToken(); token.Type != EOF {
		return nil, fmt.Errorf("%w: unexpected %s after statement", ErrSyntax, token)
	}
	return statement, nil
}

// ParseScript parses semicolon separated statements. Empty statements are
// skipped.
func (parser *Parser) ParseScript() ([]Statement, error) {
	var statements []Statement
	for {
		for parser.accept(Semicolon) {
		}
		if parser.lexer.PeekToken().Type == EOF {
			return statements, nil
		}
		statement, err := parser.parseStatement()
		if err != nil {
			return nil, fmt.Errorf("%w: statement %d: %w", ErrSyntax, len(statements)+1, err)
		}
		statements = append(statements, statement)

		token := parser.lexer.NextToken()
		switch token.Type {
		case Semicolon:
		case EOF:
			return statements, nil
		default:
			return nil, fmt.Errorf("%w: statement %d: expected ';', got %s", ErrSyntax, len(statements), token)
		}
	}
}

func (parser *Parser) parseStatement() (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case Select:
		return ParseSelect(parser)
	case Insert:
		return ParseInsert(parser)
	case Update:
		return ParseUpdate(parser)
	case Delete:
		return ParseDelete(parser)
	case Create:
		return ParseCreate(parser)
	case Drop:
		return ParseDrop(parser)
	case Begin:
		// BEGIN [TRANSACTION], START TRANSACTION
		if peek := parser.lexer.PeekToken(); peek.Type == Identifier && toUpper(peek.Value) == "TRANSACTION" {
			parser.lexer.NextToken()
		}
		return BeginStatement{}, nil
	case Commit:
		return CommitStatement{}, nil
	case Rollback:
		return RollbackStatement{}, nil
	case Describe, Desc:
		return ParseDescribe(parser)
	case Show:
		return ParseShow(parser)
	case Checkout:
		return ParseCheckout(parser)
	case Merge:
		return ParseMerge(parser)
	case Call:
		return ParseCall(parser)
	case EOF:
		return nil, errors.New("empty statement")
	default:
		return nil, fmt.Errorf("unknown statement type %s", token)
	}
}

// accept consumes the next token if it has type tt.
func (parser *Parser) accept(tt TokenType) bool {
	if parser.lexer.PeekToken().Type == tt {
		parser.lexer.NextToken()
		return true
	}
	return false
}

func (parser *Parser) expect(tt TokenType, msg string) (Token, error) {
	token := parser.lexer.NextToken()
	if token.Type != tt {
		return token, fmt.Errorf("%s, got %s", msg, token)
	}
	return token, nil
}

func (parser *Parser) identifier(msg string) (string, error) {
	token, err := parser.expect(Identifier, msg)
	return token.Value, err
}

// parseValue reads a literal: a quoted string, a number, TRUE, FALSE or NULL.
func (parser *Parser) parseValue(msg string) (Value, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case String:
		return Value{Kind: StringValue, Text: token.Value}, nil
	case Int, Float:
		return Value{Kind: NumberValue, Text: token.Value}, nil
	case True, False:
		return Value{Kind: BoolValue, Text: strings.ToLower(token.Value)}, nil
	case Null:
		return Value{Kind: NullValue}, nil
	default:
		return Value{}, fmt.Errorf("%s, got %s", msg, token)
	}
}

func (parser *Parser) parseInt(msg string) (int, error) {
	token, err := parser.expect(Int, msg)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(token.Value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s, got %s", msg, token)
	}
	return n, nil
}

// parseIdentifierList reads "(a, b, ...)".
func (parser *Parser) parseIdentifierList(what string) ([]string, error) {
	if _, err := parser.expect(ParenOpen, "expected '(' before "+what+" list"); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := parser.identifier("expected " + what + " name")
		if err != nil {
			return nil, err
		}
		names = append(names, name)

		token := parser.lexer.NextToken()
		if token.Type == ParenClose {
			return names, nil
		}
		if token.Type != Comma {
			return nil, fmt.Errorf("expected ',' or ')' in %s list, got %s", what, token)
		}
	}
}

func parseAggregateFunction(tt TokenType) string {
	switch tt {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	}
	return ""
}

func ParseSelect(parser *Parser) (Statement, error) {
	var selectStatement SelectStatement

	selectStatement.Distinct = parser.accept(Distinct)

	// Parse select list
	wildcard := false
	for {
		token := parser.lexer.NextToken()
		switch {
		case token.Type == Wildcard:
			wildcard = true
		case parseAggregateFunction(token.Type) != "":
			agg, err := parseAggregate(parser, parseAggregateFunction(token.Type))
			if err != nil {
				return nil, err
			}
			selectStatement.Aggregates = append(selectStatement.Aggregates, agg)
		case token.Type == Identifier:
			selectStatement.Columns = append(selectStatement.Columns, token.Value)
		default:
			return nil, fmt.Errorf("expected column name, *, COUNT, SUM, AVG, MIN, or MAX, got %s", token)
		}
		if !parser.accept(Comma) {
			break
		}
	}
	if wildcard && (len(selectStatement.Columns) > 0 || len(selectStatement.Aggregates) > 0) {
		return nil, errors.New("* cannot be combined with other select expressions")
	}

	if _, err := parser.expect(From, "expected FROM"); err != nil {
		return nil, err
	}
	table, err := parser.identifier("expected table name")
	if err != nil {
		return nil, err
	}
	selectStatement.Table = table

	// Parse WHERE clause
	if parser.accept(Where) {
		whereClause, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		selectStatement.Where = whereClause
	}

	// Parse GROUP BY clause
	if parser.accept(Group) {
		if _, err := parser.expect(By, "expected BY after GROUP"); err != nil {
			return nil, err
		}
		for {
			column, err := parser.identifier("expected column name in GROUP BY")
			if err != nil {
				return nil, err
			}
			selectStatement.GroupBy = append(selectStatement.GroupBy, column)
			if !parser.accept(Comma) {
				break
			}
		}
	}

	// Parse ORDER BY clause
	if parser.accept(Order) {
		if _, err := parser.expect(By, "expected BY after ORDER"); err != nil {
			return nil, err
		}
		for {
			column, err := parser.identifier("expected column name in ORDER BY")
			if err != nil {
				return nil, err
			}
			orderByClause := OrderByClause{Column: column}
			if parser.accept(Desc) {
				orderByClause.Descending = true
			} else {
				parser.accept(Asc)
			}
			selectStatement.OrderBy = append(selectStatement.OrderBy, orderByClause)
			if !parser.accept(Comma) {
				break
			}
		}
	}

	// Parse LIMIT clause
	if parser.accept(Limit) {
		limit, err := parser.parseInt("expected integer after LIMIT")
		if err != nil {
			return nil, err
		}
		selectStatement.Limit = limit
	}

	// Parse OFFSET clause
	if parser.accept(Offset) {
		offset, err := parser.parseInt("expected integer after OFFSET")
		if err != nil {
			return nil, err
		}
		selectStatement.Offset = offset
	}

	return selectStatement, nil
}

// parseAggregate parses the "(col) [AS alias]" following an aggregate name.
func parseAggregate(parser *Parser, funcName string) (AggregateExpr, error) {
	agg := AggregateExpr{Function: funcName}
	if _, err := parser.expect(ParenOpen, "expected '(' after "+funcName); err != nil {
		return agg, err
	}
	token := parser.lexer.NextToken()
	switch {
	case token.Type == Wildcard && funcName == "COUNT":
		agg.Column = "*"
	case token.Type == Identifier:
		agg.Column = token.Value
	default:
		return agg, fmt.Errorf("expected column name in %s(), got %s", funcName, token)
	}
	if _, err := parser.expect(ParenClose, "expected ')' after column name"); err != nil {
		return agg, err
	}
	if parser.accept(As) {
		alias, err := parser.identifier("expected alias after AS")
		if err != nil {
			return agg, err
		}
		agg.Alias = alias
	}
	return agg, nil
}

func ParseWhere(parser *Parser) (WhereClause, error) {
	var whereClause WhereClause

	for {
		// Check for NOT
		negated := parser.accept(Not)

		left, err := parser.identifier("expected identifier in WHERE clause")
		if err != nil {
			return whereClause, err
		}
		condition := WhereCondition{Left: left, Negated: negated}

		token := parser.lexer.NextToken()
		if token.Type == Not {
			// col NOT IN (...), col NOT LIKE '...'
			condition.Negated = !condition.Negated
			token = parser.lexer.NextToken()
			if token.Type != In && token.Type != Like {
				return whereClause, fmt.Errorf("expected IN or LIKE after NOT, got %s", token)
			}
		}

		switch token.Type {
		case Is:
			// IS NULL / IS NOT NULL
			condition.Operator = IsNullOperator
			if parser.accept(Not) {
				condition.Operator = IsNotNullOperator
			}
			if _, err := parser.expect(Null, "expected NULL after IS"); err != nil {
				return whereClause, err
			}
		case In:
			condition.Operator = InOperator
			if _, err := parser.expect(ParenOpen, "expected '(' after IN"); err != nil {
				return whereClause, err
			}
			for {
				value, err := parser.parseValue("expected value in IN list")
				if err != nil {
					return whereClause, err
				}
				condition.InValues = append(condition.InValues, value)

				token = parser.lexer.NextToken()
				if token.Type == ParenClose {
					break
				}
				if token.Type != Comma {
					return whereClause, fmt.Errorf("expected ',' or ')' in IN list, got %s", token)
				}
			}
		default:
			switch token.Type {
			case Equals:
				condition.Operator = EqualsOperator
			case NotEquals:
				condition.Operator = NotEqualsOperator
			case LessThan:
				condition.Operator = LessThanOperator
			case GreaterThan:
				condition.Operator = GreaterThanOperator
			case LessThanOrEqual:
				condition.Operator = LessThanOrEqualOperator
			case GreaterThanOrEqual:
				condition.Operator = GreaterThanOrEqualOperator
			case Like:
				condition.Operator = LikeOperator
			default:
				return whereClause, fmt.Errorf("expected operator in WHERE clause, got %s", token)
			}
			value, err := parser.parseValue("expected value in WHERE clause")
			if err != nil {
				return whereClause, err
			}
			condition.Right = value
		}

		whereClause.Conditions = append(whereClause.Conditions, condition)

		switch {
		case parser.accept(And):
			whereClause.LogicalOps = append(whereClause.LogicalOps, LogicalAnd)
		case parser.accept(Or):
			whereClause.LogicalOps = append(whereClause.LogicalOps, LogicalOr)
		default:
			return whereClause, nil
		}
	}
}

func ParseInsert(parser *Parser) (Statement, error) {
	var insertStatement InsertStatement

	if _, err := parser.expect(Into, "expected INTO after INSERT"); err != nil {
		return nil, err
	}
	table, err := parser.identifier("expected table name after INSERT INTO")
	if err != nil {
		return nil, err
	}
	insertStatement.Table = table

	// Optional column list
	if parser.lexer.PeekToken().Type == ParenOpen {
		columns, err := parser.parseIdentifierList("column")
		if err != nil {
			return nil, err
		}
		insertStatement.Columns = columns
	}

	if _, err := parser.expect(Values, "expected VALUES"); err != nil {
		return nil, err
	}

	for {
		if _, err := parser.expect(ParenOpen, "expected '(' before row values"); err != nil {
			return nil, err
		}
		var row []Value
		for {
			value, err := parser.parseValue("expected value")
			if err != nil {
				return nil, err
			}
			row = append(row, value)

			token := parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return nil, fmt.Errorf("expected ',' or ')' in values list, got %s", token)
			}
		}
		if len(insertStatement.Columns) > 0 && len(row) != len(insertStatement.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", len(insertStatement.Rows)+1, len(row), len(insertStatement.Columns))
		}
		insertStatement.Rows = append(insertStatement.Rows, row)

		if !parser.accept(Comma) {
			break
		}
	}

	return insertStatement, nil
}

func ParseUpdate(parser *Parser) (Statement, error) {
	var updateStatement UpdateStatement

	table, err := parser.identifier("expected table name after UPDATE")
	if err != nil {
		return nil, err
	}
	updateStatement.Table = table

	if _, err := parser.expect(Set, "expected SET after table name"); err != nil {
		return nil, err
	}

	for {
		column, err := parser.identifier("expected column name in SET clause")
		if err != nil {
			return nil, err
		}
		if _, err := parser.expect(Equals, "expected '=' in SET clause"); err != nil {
			return nil, err
		}
		value, err := parser.parseValue("expected value in SET clause")
		if err != nil {
			return nil, err
		}
		updateStatement.Updates = append(updateStatement.Updates, SetClause{
			Column: column,
			Value:  value,
		})
		if !parser.accept(Comma) {
			break
		}
	}

	if parser.accept(Where) {
		whereClause, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		updateStatement.Where = whereClause
	}

	return updateStatement, nil
}

func ParseDelete(parser *Parser) (Statement, error) {
	var deleteStatement DeleteStatement

	if _, err := parser.expect(From, "expected FROM after DELETE"); err != nil {
		return nil, err
	}
	table, err := parser.identifier("expected table name after FROM")
	if err != nil {
		return nil, err
	}
	deleteStatement.Table = table

	if parser.accept(Where) {
		whereClause, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		deleteStatement.Where = whereClause
	}

	return deleteStatement, nil
}

func ParseCreate(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TableIdentifier:
		return ParseCreateTable(parser)
	case Branch:
		return ParseCreateBranch(parser)
	default:
		return nil, fmt.Errorf("expected TABLE or BRANCH after CREATE, got %s", token)
	}
}

func ParseCreateTable(parser *Parser) (Statement, error) {
	var createTableStatement CreateTableStatement

	if parser.accept(If) {
		if _, err := parser.expect(Not, "expected NOT after IF"); err != nil {
			return nil, err
		}
		if _, err := parser.expect(Exists, "expected EXISTS after IF NOT"); err != nil {
			return nil, err
		}
		createTableStatement.IfNotExists = true
	}

	table, err := parser.identifier("expected table name after TABLE")
	if err != nil {
		return nil, err
	}
	createTableStatement.Table = table

	if _, err := parser.expect(ParenOpen, "expected '(' after table name"); err != nil {
		return nil, err
	}

	var tableKey []string
	for {
		if parser.accept(PrimaryKey) {
			// table-level PRIMARY KEY (a, b)
			if tableKey != nil {
				return nil, errors.New("multiple PRIMARY KEY clauses")
			}
			tableKey, err = parser.parseIdentifierList("primary key column")
			if err != nil {
				return nil, err
			}
		} else {
			column, err := parseColumnDefinition(parser)
			if err != nil {
				return nil, err
			}
			createTableStatement.Columns = append(createTableStatement.Columns, column)
		}

		token := parser.lexer.NextToken()
		if token.Type == ParenClose {
			break
		}
		if token.Type != Comma {
			return nil, fmt.Errorf("expected ',' or ')' in column list, got %s", token)
		}
	}

	for _, name := range tableKey {
		idx := core.Table{Columns: createTableStatement.Columns}.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s in PRIMARY KEY", core.ErrNoSuchColumn, name)
		}
		createTableStatement.Columns[idx].PrimaryKey = true
	}

	return createTableStatement, nil
}

// parseColumnDefinition parses "name TYPE[(n)] [PRIMARY KEY] [NOT NULL | NULL]".
func parseColumnDefinition(parser *Parser) (core.Column, error) {
	var column core.Column

	name, err := parser.identifier("expected column name")
	if err != nil {
		return column, err
	}
	column.Name = name

	typeName, err := parser.identifier("expected column type for " + name)
	if err != nil {
		return column, err
	}
	column.Type, err = core.ParseColumnType(typeName)
	if err != nil {
		return column, err
	}

	// VARCHAR(n), DECIMAL(p, s)
	if parser.accept(ParenOpen) {
		length, err := parser.parseInt("expected length for " + typeName)
		if err != nil {
			return column, err
		}
		if parser.accept(Comma) {
			if _, err := parser.parseInt("expected scale for " + typeName); err != nil {
				return column, err
			}
		}
		if _, err := parser.expect(ParenClose, "expected ')' after length"); err != nil {
			return column, err
		}
		if column.Type == core.StringType {
			column.Length = length
		}
	}

	for {
		switch {
		case parser.accept(PrimaryKey):
			column.PrimaryKey = true
		case parser.accept(Not):
			if _, err := parser.expect(Null, "expected NULL after NOT"); err != nil {
				return column, err
			}
			column.NotNull = true
		case parser.accept(Null):
		default:
			return column, nil
		}
	}
}

func ParseDrop(parser *Parser) (Statement, error) {
	if _, err := parser.expect(TableIdentifier, "expected TABLE after DROP"); err != nil {
		return nil, err
	}

	var dropTableStatement DropTableStatement
	if parser.accept(If) {
		if _, err := parser.expect(Exists, "expected EXISTS after IF"); err != nil {
			return nil, err
		}
		dropTableStatement.IfExists = true
	}

	table, err := parser.identifier("expected table name after TABLE")
	if err != nil {
		return nil, err
	}
	dropTableStatement.Table = table

	return dropTableStatement, nil
}

func ParseShow(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TablesIdentifier:
		return ShowTablesStatement{}, nil
	case Branches:
		return ShowBranchesStatement{}, nil
	default:
		return nil, fmt.Errorf("expected TABLES or BRANCHES after SHOW, got %s", token)
	}
}

// ParseDescribe parses DESCRIBE table statements
func ParseDescribe(parser *Parser) (Statement, error) {
	table, err := parser.identifier("expected table name after DESCRIBE")
	if err != nil {
		return nil, err
	}
	return DescribeStatement{Table: table}, nil
}

func parse(sql string) (Statement, error) {
	parser := NewParser(sql)

	return parser.Parse()
}

// ParseCreateBranch parses CREATE BRANCH statements
// Syntax: CREATE BRANCH name [FROM branch | 'commit']
func ParseCreateBranch(parser *Parser) (Statement, error) {
	var stmt CreateBranchStatement

	name, err := parser.identifier("expected branch name after CREATE BRANCH")
	if err != nil {
		return nil, err
	}
	stmt.Name = name

	if parser.accept(From) {
		token := parser.lexer.NextToken()
		if token.Type != String && token.Type != Identifier {
			return nil, fmt.Errorf("expected branch or commit after FROM, got %s", token)
		}
		stmt.From = token.Value
	}

	return stmt, nil
}

// ParseCheckout parses CHECKOUT statements
// Syntax: CHECKOUT branch_name
func ParseCheckout(parser *Parser) (Statement, error) {
	branch, err := parser.identifier("expected branch name after CHECKOUT")
	if err != nil {
		return nil, err
	}
	return CheckoutStatement{Branch: branch}, nil
}

// ParseMerge parses MERGE statements
// Syntax: MERGE branch_name [WITH strategy]
func ParseMerge(parser *Parser) (Statement, error) {
	branch, err := parser.identifier("expected branch name after MERGE")
	if err != nil {
		return nil, err
	}

	stmt := MergeStatement{SourceBranch: branch}
	if parser.accept(With) {
		token := parser.lexer.NextToken()
		if token.Type != String && token.Type != Identifier {
			return nil, fmt.Errorf("expected merge strategy after WITH, got %s", token)
		}
		stmt.Strategy = strings.ToLower(strings.ReplaceAll(token.Value, "_", "-"))
	}

	return stmt, nil
}

// ParseCall parses CALL statements
// Syntax: CALL procedure(['arg', ...])
func ParseCall(parser *Parser) (Statement, error) {
	procedure, err := parser.identifier("expected procedure name after CALL")
	if err != nil {
		return nil, err
	}
	stmt := CallStatement{Procedure: toUpper(procedure)}

	if _, err := parser.expect(ParenOpen, "expected '(' after procedure name"); err != nil {
		return nil, err
	}
	if parser.accept(ParenClose) {
		return stmt, nil
	}
	for {
		value, err := parser.parseValue("expected argument")
		if err != nil {
			return nil, err
		}
		stmt.Args = append(stmt.Args, value.Text)

		token := parser.lexer.NextToken()
		if token.Type == ParenClose {
			return stmt, nil
		}
		if token.Type != Comma {
			return nil, fmt.Errorf("expected ',' or ')' in argument list, got %s", token)
		}
	}
}
