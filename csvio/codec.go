// Package csvio reads and writes table rows as CSV.
//
// Every column gets a Codec. Date-like columns, those of a temporal type or
// whose name starts with "date", are written with a fixed layout and NULL is
// written as the empty string; reading the empty string back gives NULL.
// Numeric and boolean columns treat the empty string as NULL too. String
// columns write NULL as "" and read "" as the empty string.
package csvio

import (
	"strings"
	"time"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/val"
)

// IsDateLike reports whether col uses the date codec.
func IsDateLike(col core.Column) bool {
	return col.Type.IsTemporal() || strings.HasPrefix(strings.ToLower(col.Name), "date")
}

type Codec struct {
	col      core.Column
	dateLike bool
	layout   string
}

func CodecFor(col core.Column) Codec {
	layout := val.DateTimeLayout
	if col.Type == core.DateType {
		layout = val.DateLayout
	}
	return Codec{col: col, dateLike: IsDateLike(col), layout: layout}
}

func (c Codec) Column() core.Column {
	return c.col
}

// Encode renders a cell.
func (c Codec) Encode(v any) string {
	if v == nil {
		return ""
	}
	if ts, ok := v.(time.Time); ok && c.dateLike {
		return ts.UTC().Format(c.layout)
	}
	return val.Format(v)
}

// Decode parses a field into a cell of the column's type.
func (c Codec) Decode(s string) (any, error) {
	switch {
	case c.dateLike && c.col.Type.IsTemporal():
		if s == "" {
			return nil, nil
		}
		return val.Parse(c.col.Type, s)
	case c.dateLike:
		// A text column named like a date: normalize parseable values.
		if s == "" {
			return nil, nil
		}
		if ts, err := val.Parse(core.TimestampType, s); err == nil {
			return ts.(time.Time).Format(val.DateTimeLayout), nil
		}
		return s, nil
	case c.col.Type.IsNumeric(), c.col.Type == core.BoolType:
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return val.Parse(c.col.Type, s)
	case c.col.Type == core.JsonType:
		if s == "" {
			return nil, nil
		}
		return val.Parse(c.col.Type, s)
	default:
		return s, nil
	}
}
