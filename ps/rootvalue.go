package ps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

const (
	fieldRootEntry  protowire.Number = 1
	fieldEntryName  protowire.Number = 1
	fieldEntryTable protowire.Number = 2

	fieldTableSchema protowire.Number = 1
	fieldTableRows   protowire.Number = 2
)

// RootValue maps table names to table chunks. It is immutable; With and
// Without return modified copies.
type RootValue struct {
	tables map[string]hash.Hash
}

func EmptyRootValue() *RootValue {
	return &RootValue{tables: map[string]hash.Hash{}}
}

// TableNames returns the table names in sorted order.
func (rv *RootValue) TableNames() []string {
	names := make([]string, 0, len(rv.tables))
	for name := range rv.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the stored spelling of a table name, matched
// case-insensitively.
func (rv *RootValue) Resolve(name string) (string, bool) {
	if _, ok := rv.tables[name]; ok {
		return name, true
	}
	for stored := range rv.tables {
		if strings.EqualFold(stored, name) {
			return stored, true
		}
	}
	return "", false
}

func (rv *RootValue) TableHash(name string) (hash.Hash, bool) {
	stored, ok := rv.Resolve(name)
	if !ok {
		return hash.Hash{}, false
	}
	return rv.tables[stored], true
}

func (rv *RootValue) With(name string, h hash.Hash) *RootValue {
	next := rv.copy()
	if stored, ok := rv.Resolve(name); ok {
		delete(next.tables, stored)
	}
	next.tables[name] = h
	return next
}

func (rv *RootValue) Without(name string) *RootValue {
	next := rv.copy()
	if stored, ok := rv.Resolve(name); ok {
		delete(next.tables, stored)
	}
	return next
}

func (rv *RootValue) copy() *RootValue {
	next := &RootValue{tables: make(map[string]hash.Hash, len(rv.tables)+1)}
	for name, h := range rv.tables {
		next.tables[name] = h
	}
	return next
}

func encodeRootValue(rv *RootValue) []byte {
	buf := []byte{byte(chunks.KindRoot)}
	for _, name := range rv.TableNames() {
		h := rv.tables[name]
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryName, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, fieldEntryTable, protowire.BytesType)
		entry = protowire.AppendBytes(entry, h[:])

		buf = protowire.AppendTag(buf, fieldRootEntry, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	return buf
}

func decodeRootValue(h hash.Hash, data []byte) (*RootValue, error) {
	if chunks.KindOf(data) != chunks.KindRoot {
		return nil, fmt.Errorf("chunk %s is not a root value: %w", h, core.ErrCorruption)
	}
	rv := EmptyRootValue()
	err := consumeBytesFields(data[1:], func(num protowire.Number, entry []byte) error {
		if num != fieldRootEntry {
			return nil
		}
		var name string
		var table hash.Hash
		err := consumeBytesFields(entry, func(num protowire.Number, v []byte) error {
			switch num {
			case fieldEntryName:
				name = string(v)
			case fieldEntryTable:
				th, err := hash.New(v)
				if err != nil {
					return err
				}
				table = th
			}
			return nil
		})
		if err != nil {
			return err
		}
		rv.tables[name] = table
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding root value %s: %v: %w", h, err, core.ErrCorruption)
	}
	return rv, nil
}

// TableValue is a table's schema and the root of its row map.
type TableValue struct {
	Schema core.Table
	Rows   hash.Hash
}

func encodeTableValue(tv TableValue) ([]byte, error) {
	schema, err := tv.Schema.Marshal()
	if err != nil {
		return nil, err
	}
	buf := []byte{byte(chunks.KindTable)}
	buf = protowire.AppendTag(buf, fieldTableSchema, protowire.BytesType)
	buf = protowire.AppendBytes(buf, schema)
	buf = protowire.AppendTag(buf, fieldTableRows, protowire.BytesType)
	buf = protowire.AppendBytes(buf, tv.Rows[:])
	return buf, nil
}

func decodeTableValue(h hash.Hash, data []byte) (TableValue, error) {
	if chunks.KindOf(data) != chunks.KindTable {
		return TableValue{}, fmt.Errorf("chunk %s is not a table: %w", h, core.ErrCorruption)
	}
	var tv TableValue
	var schema []byte
	err := consumeBytesFields(data[1:], func(num protowire.Number, v []byte) error {
		switch num {
		case fieldTableSchema:
			schema = v
		case fieldTableRows:
			rows, err := hash.New(v)
			if err != nil {
				return err
			}
			tv.Rows = rows
		}
		return nil
	})
	if err != nil {
		return TableValue{}, fmt.Errorf("decoding table %s: %v: %w", h, err, core.ErrCorruption)
	}
	tv.Schema, err = core.UnmarshalTable(schema)
	if err != nil {
		return TableValue{}, err
	}
	return tv, nil
}

// consumeBytesFields calls fn for every length-delimited field in b and
// skips fields of other wire types.
func consumeBytesFields(b []byte, fn func(protowire.Number, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Persistence) ReadRoot(ctx context.Context, h hash.Hash) (*RootValue, error) {
	data, err := p.cs.Get(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to read root value: %w", err)
	}
	return decodeRootValue(h, data)
}

func (p *Persistence) WriteRoot(ctx context.Context, rv *RootValue) (hash.Hash, error) {
	return p.cs.Put(ctx, encodeRootValue(rv))
}

func (p *Persistence) ReadTable(ctx context.Context, h hash.Hash) (TableValue, error) {
	data, err := p.cs.Get(ctx, h)
	if err != nil {
		return TableValue{}, fmt.Errorf("failed to read table: %w", err)
	}
	return decodeTableValue(h, data)
}

func (p *Persistence) WriteTable(ctx context.Context, tv TableValue) (hash.Hash, error) {
	data, err := encodeTableValue(tv)
	if err != nil {
		return hash.Hash{}, err
	}
	return p.cs.Put(ctx, data)
}

func (rv *RootValue) HasTable(name string) bool {
	_, ok := rv.Resolve(name)
	return ok
}
