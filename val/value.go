package val

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nickyhof/TreeDB/core"
)

// Row holds one cell per table column.
type Row []any

func (r Row) Copy() Row {
	return append(Row(nil), r...)
}

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

var timeLayouts = []string{
	DateTimeLayout,
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Compare orders two cells. NULL sorts first; integers and floats compare
// numerically; values of unrelated types compare by their text form.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case float64:
			return cmpFloat(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpFloat(x, float64(y))
		case float64:
			return cmpFloat(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(Format(a), Format(b))
}

func cmpOrdered[T int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	default:
		return 1
	}
}

// Equal reports whether two cells hold the same value.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

// Format renders a cell as text. NULL renders as "NULL".
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format(DateTimeLayout)
	default:
		return fmt.Sprint(x)
	}
}

// Parse converts text to a cell of type t.
func Parse(t core.ColumnType, s string) (any, error) {
	switch t {
	case core.IntType:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, typeError(t, s)
		}
		return i, nil
	case core.FloatType:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, typeError(t, s)
		}
		return f, nil
	case core.BoolType:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, typeError(t, s)
		}
		return b, nil
	case core.DateType, core.TimestampType:
		return parseTime(t, s)
	case core.JsonType:
		if !json.Valid([]byte(s)) {
			return nil, typeError(t, s)
		}
		return s, nil
	default:
		return s, nil
	}
}

func parseTime(t core.ColumnType, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return normalizeTime(t, ts), nil
		}
	}
	return time.Time{}, typeError(t, s)
}

func normalizeTime(t core.ColumnType, ts time.Time) time.Time {
	ts = ts.UTC()
	if t == core.DateType {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return ts.Truncate(time.Microsecond)
}

// Coerce converts a literal to a cell of type t. NULL stays NULL.
func Coerce(t core.ColumnType, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return Parse(t, x)
	case int64:
		switch t {
		case core.IntType:
			return x, nil
		case core.FloatType:
			return float64(x), nil
		case core.BoolType:
			return x != 0, nil
		case core.StringType, core.TextType, core.JsonType:
			return strconv.FormatInt(x, 10), nil
		}
	case int:
		return Coerce(t, int64(x))
	case float64:
		switch t {
		case core.FloatType:
			return x, nil
		case core.IntType:
			if x != math.Trunc(x) {
				return nil, typeError(t, Format(x))
			}
			return int64(x), nil
		case core.StringType, core.TextType, core.JsonType:
			return Format(x), nil
		}
	case bool:
		switch t {
		case core.BoolType:
			return x, nil
		case core.IntType:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case core.StringType, core.TextType, core.JsonType:
			return strconv.FormatBool(x), nil
		}
	case time.Time:
		switch t {
		case core.DateType, core.TimestampType:
			return normalizeTime(t, x), nil
		case core.StringType, core.TextType:
			return Format(x), nil
		}
	}
	return nil, typeError(t, Format(v))
}

func typeError(t core.ColumnType, s string) error {
	return fmt.Errorf("%w: %q is not a valid %s", core.ErrSchemaViolation, s, t)
}
