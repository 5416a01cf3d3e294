package val

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/nickyhof/TreeDB/core"
)

const (
	escapeByte     = 0x00
	escapedZero    = 0xff
	terminatorByte = 0x01
)

// EncodeKey returns the order-preserving key of row under table's primary key.
func EncodeKey(table core.Table, row Row) ([]byte, error) {
	pk := table.PrimaryKey()
	cells := make([]any, len(pk))
	types := make([]core.ColumnType, len(pk))
	for i, idx := range pk {
		if idx >= len(row) {
			return nil, fmt.Errorf("%w: row has %d cells, table %s has %d columns",
				core.ErrSchemaViolation, len(row), table.Name, len(table.Columns))
		}
		cells[i] = row[idx]
		types[i] = table.Columns[idx].Type
	}
	return EncodeKeyCells(types, cells)
}

// EncodeKeyCells encodes key cells of the given types. Cells must not be NULL.
func EncodeKeyCells(types []core.ColumnType, cells []any) ([]byte, error) {
	var buf []byte
	for i, t := range types {
		v, err := Coerce(t, cells[i])
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("%w: primary key cell %d is NULL", core.ErrConstraintViolation, i)
		}
		buf = appendKeyCell(buf, t, v)
	}
	return buf, nil
}

func appendKeyCell(buf []byte, t core.ColumnType, v any) []byte {
	switch t {
	case core.IntType:
		return binary.BigEndian.AppendUint64(buf, uint64(v.(int64))^(1<<63))
	case core.FloatType:
		bits := math.Float64bits(v.(float64))
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return binary.BigEndian.AppendUint64(buf, bits)
	case core.BoolType:
		if v.(bool) {
			return append(buf, 1)
		}
		return append(buf, 0)
	case core.DateType, core.TimestampType:
		return binary.BigEndian.AppendUint64(buf, uint64(v.(time.Time).UnixMicro())^(1<<63))
	default:
		s := v.(string)
		for i := 0; i < len(s); i++ {
			if s[i] == escapeByte {
				buf = append(buf, escapeByte, escapedZero)
			} else {
				buf = append(buf, s[i])
			}
		}
		return append(buf, escapeByte, terminatorByte)
	}
}

// DecodeKey reverses EncodeKeyCells.
func DecodeKey(types []core.ColumnType, key []byte) ([]any, error) {
	cells := make([]any, len(types))
	for i, t := range types {
		switch t {
		case core.IntType, core.FloatType, core.DateType, core.TimestampType:
			if len(key) < 8 {
				return nil, keyError(key)
			}
			u := binary.BigEndian.Uint64(key)
			key = key[8:]
			switch t {
			case core.IntType:
				cells[i] = int64(u ^ (1 << 63))
			case core.FloatType:
				if u&(1<<63) != 0 {
					u &^= 1 << 63
				} else {
					u = ^u
				}
				cells[i] = math.Float64frombits(u)
			default:
				cells[i] = time.UnixMicro(int64(u ^ (1 << 63))).UTC()
			}
		case core.BoolType:
			if len(key) < 1 {
				return nil, keyError(key)
			}
			cells[i] = key[0] == 1
			key = key[1:]
		default:
			var s []byte
			done := false
			for !done {
				if len(key) < 1 {
					return nil, keyError(key)
				}
				b := key[0]
				key = key[1:]
				if b != escapeByte {
					s = append(s, b)
					continue
				}
				if len(key) < 1 {
					return nil, keyError(key)
				}
				switch key[0] {
				case escapedZero:
					s = append(s, escapeByte)
				case terminatorByte:
					done = true
				default:
					return nil, keyError(key)
				}
				key = key[1:]
			}
			cells[i] = string(s)
		}
	}
	if len(key) != 0 {
		return nil, keyError(key)
	}
	return cells, nil
}

func keyError(rest []byte) error {
	return fmt.Errorf("%w: malformed key near %x", core.ErrCorruption, rest)
}

// KeyTypes returns the types of table's primary key columns.
func KeyTypes(table core.Table) []core.ColumnType {
	pk := table.PrimaryKey()
	types := make([]core.ColumnType, len(pk))
	for i, idx := range pk {
		types[i] = table.Columns[idx].Type
	}
	return types
}
