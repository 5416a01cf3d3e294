package val

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nickyhof/TreeDB/core"
)

// EncodeRow encodes every non-NULL cell of row as a field numbered by its
// column position plus one. Cells are coerced to their column types first.
func EncodeRow(table core.Table, row Row) ([]byte, error) {
	if len(row) != len(table.Columns) {
		return nil, fmt.Errorf("%w: row has %d cells, table %s has %d columns",
			core.ErrSchemaViolation, len(row), table.Name, len(table.Columns))
	}
	var buf []byte
	for i, col := range table.Columns {
		v, err := Coerce(col.Type, row[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if v == nil {
			continue
		}
		num := protowire.Number(i + 1)
		switch x := v.(type) {
		case int64:
			buf = protowire.AppendTag(buf, num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(x))
		case float64:
			buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
			buf = protowire.AppendFixed64(buf, math.Float64bits(x))
		case bool:
			buf = protowire.AppendTag(buf, num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, protowire.EncodeBool(x))
		case time.Time:
			buf = protowire.AppendTag(buf, num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(x.UnixMicro()))
		case string:
			buf = protowire.AppendTag(buf, num, protowire.BytesType)
			buf = protowire.AppendString(buf, x)
		}
	}
	return buf, nil
}

// DecodeRow decodes a value written by EncodeRow. Fields beyond the table's
// columns are skipped and missing fields decode as NULL.
func DecodeRow(table core.Table, data []byte) (Row, error) {
	row := make(Row, len(table.Columns))
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, rowError(protowire.ParseError(n))
		}
		data = data[n:]
		idx := int(num) - 1
		if idx < 0 || idx >= len(table.Columns) {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, rowError(protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		ct := table.Columns[idx].Type
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, rowError(protowire.ParseError(n))
			}
			data = data[n:]
			switch ct {
			case core.IntType:
				row[idx] = protowire.DecodeZigZag(v)
			case core.BoolType:
				row[idx] = protowire.DecodeBool(v)
			case core.DateType, core.TimestampType:
				row[idx] = time.UnixMicro(protowire.DecodeZigZag(v)).UTC()
			default:
				return nil, rowError(fmt.Errorf("varint field for %s column", ct))
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, rowError(protowire.ParseError(n))
			}
			data = data[n:]
			if ct != core.FloatType {
				return nil, rowError(fmt.Errorf("fixed64 field for %s column", ct))
			}
			row[idx] = math.Float64frombits(v)
		case protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, rowError(protowire.ParseError(n))
			}
			data = data[n:]
			row[idx] = v
		default:
			return nil, rowError(fmt.Errorf("unexpected wire type %d", typ))
		}
	}
	return row, nil
}

func rowError(err error) error {
	return fmt.Errorf("%w: decoding row: %v", core.ErrCorruption, err)
}
