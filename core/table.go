package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ColumnType int

const (
	StringType ColumnType = iota
	IntType
	FloatType
	BoolType
	TextType
	DateType
	TimestampType
	JsonType
)

var columnTypeNames = map[ColumnType]string{
	StringType:    "STRING",
	IntType:       "INT",
	FloatType:     "FLOAT",
	BoolType:      "BOOL",
	TextType:      "TEXT",
	DateType:      "DATE",
	TimestampType: "DATETIME",
	JsonType:      "JSON",
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// IsTemporal reports whether values of this type are points in time.
func (t ColumnType) IsTemporal() bool {
	return t == DateType || t == TimestampType
}

// IsNumeric reports whether values of this type are numbers.
func (t ColumnType) IsNumeric() bool {
	return t == IntType || t == FloatType
}

// ParseColumnType maps a SQL type name to a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	switch strings.ToUpper(name) {
	case "STRING", "VARCHAR", "CHAR":
		return StringType, nil
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT":
		return IntType, nil
	case "FLOAT", "DOUBLE", "REAL", "DECIMAL":
		return FloatType, nil
	case "BOOL", "BOOLEAN":
		return BoolType, nil
	case "TEXT", "LONGTEXT":
		return TextType, nil
	case "DATE":
		return DateType, nil
	case "TIMESTAMP", "DATETIME":
		return TimestampType, nil
	case "JSON":
		return JsonType, nil
	default:
		return 0, fmt.Errorf("%w: unknown column type %q", ErrSchemaViolation, name)
	}
}

type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primaryKey"`
	NotNull    bool       `json:"notNull,omitempty"`
	Length     int        `json:"length,omitempty"`
}

// Nullable reports whether the column accepts NULL. Primary key columns never do.
func (c Column) Nullable() bool {
	return !c.PrimaryKey && !c.NotNull
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ColumnIndex returns the position of the named column, matched case-insensitively, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// PrimaryKey returns the positions of the primary key columns in declared order.
func (t Table) PrimaryKey() []int {
	var pk []int
	for i, col := range t.Columns {
		if col.PrimaryKey {
			pk = append(pk, i)
		}
	}
	return pk
}

// Validate checks that the schema is usable for a keyed table.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table name is empty", ErrSchemaViolation)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrSchemaViolation, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		key := strings.ToLower(col.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %s in table %s", ErrSchemaViolation, col.Name, t.Name)
		}
		seen[key] = true
	}
	if len(t.PrimaryKey()) == 0 {
		return fmt.Errorf("%w: table %s has no primary key", ErrSchemaViolation, t.Name)
	}
	return nil
}

func (t Table) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func UnmarshalTable(data []byte) (Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("%w: table schema: %v", ErrCorruption, err)
	}
	return t, nil
}
