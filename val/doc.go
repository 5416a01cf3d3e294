// Package val encodes rows for storage in a prolly map.
//
// A row is a Row aligned with its table's columns. Cells hold nil (NULL),
// int64, float64, bool, string or time.Time.
//
// Keys are built from the primary key columns with an order-preserving
// encoding, so bytes.Compare on two keys gives the same answer as comparing
// the key columns one by one in declared order:
//
//	key, err := val.EncodeKey(table, row)
//
// Values are protowire messages with one field per column, numbered by
// column position. A NULL cell is an absent field:
//
//	value, err := val.EncodeRow(table, row)
//	row, err := val.DecodeRow(table, value)
package val
