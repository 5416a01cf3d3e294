package ps

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/val"
)

// TableDelta describes how one table differs between two roots.
type TableDelta struct {
	Name          string
	Added         bool
	Dropped       bool
	SchemaChanged bool
	FromHash      hash.Hash
	ToHash        hash.Hash
}

// RowDiff is one changed row. From is nil for added rows and To is nil for
// removed rows.
type RowDiff struct {
	Table string
	Type  prolly.DiffType
	Key   []any
	From  val.Row
	To    val.Row
}

// TableDeltas lists the tables that differ between two roots, by name.
func (p *Persistence) TableDeltas(ctx context.Context, from, to hash.Hash) ([]TableDelta, error) {
	fromRoot, err := p.ReadRoot(ctx, from)
	if err != nil {
		return nil, err
	}
	toRoot, err := p.ReadRoot(ctx, to)
	if err != nil {
		return nil, err
	}

	var deltas []TableDelta
	seen := map[string]bool{}
	for _, name := range toRoot.TableNames() {
		seen[name] = true
		th := toRoot.tables[name]
		fh, ok := fromRoot.TableHash(name)
		if ok && fh == th {
			continue
		}
		d := TableDelta{Name: name, Added: !ok, FromHash: fh, ToHash: th}
		if ok {
			changed, err := p.schemaChanged(ctx, fh, th)
			if err != nil {
				return nil, err
			}
			d.SchemaChanged = changed
		}
		deltas = append(deltas, d)
	}
	for _, name := range fromRoot.TableNames() {
		if stored, ok := toRoot.Resolve(name); ok && seen[stored] {
			continue
		}
		deltas = append(deltas, TableDelta{Name: name, Dropped: true, FromHash: fromRoot.tables[name]})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Name < deltas[j].Name })
	return deltas, nil
}

func (p *Persistence) schemaChanged(ctx context.Context, from, to hash.Hash) (bool, error) {
	a, err := p.ReadTable(ctx, from)
	if err != nil {
		return false, err
	}
	b, err := p.ReadTable(ctx, to)
	if err != nil {
		return false, err
	}
	return !sameSchema(a.Schema, b.Schema), nil
}

// DiffTable calls fn for every row of table that differs between the roots
// from and to, in key order. A table present on one side only diffs against
// an empty table. Returning prolly.ErrStopDiff from fn ends the walk early.
func (p *Persistence) DiffTable(ctx context.Context, from, to hash.Hash, table string, fn func(RowDiff) error) error {
	fromView, err := p.View(ctx, from)
	if err != nil {
		return err
	}
	toView, err := p.View(ctx, to)
	if err != nil {
		return err
	}

	fromSchema, fromRows, err := p.tableOrEmpty(ctx, fromView, table)
	if err != nil {
		return err
	}
	toSchema, toRows, err := p.tableOrEmpty(ctx, toView, table)
	if err != nil {
		return err
	}
	if fromSchema == nil && toSchema == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchTable, table)
	}
	if fromSchema == nil {
		fromSchema = toSchema
	}
	if toSchema == nil {
		toSchema = fromSchema
	}

	keyTypes := val.KeyTypes(*toSchema)
	return prolly.DiffMaps(ctx, fromRows, toRows, func(ctx context.Context, d prolly.Diff) error {
		rd := RowDiff{Table: table, Type: d.Type}
		var err error
		if rd.Key, err = val.DecodeKey(keyTypes, d.Key); err != nil {
			return err
		}
		if d.Type != prolly.AddedDiff {
			if rd.From, err = val.DecodeRow(*fromSchema, d.From); err != nil {
				return err
			}
		}
		if d.Type != prolly.RemovedDiff {
			if rd.To, err = val.DecodeRow(*toSchema, d.To); err != nil {
				return err
			}
		}
		return fn(rd)
	})
}

func (p *Persistence) tableOrEmpty(ctx context.Context, v *RootView, table string) (*core.Table, prolly.Map, error) {
	schema, rows, err := v.LoadTable(ctx, table)
	if errors.Is(err, core.ErrNoSuchTable) {
		empty, err := prolly.NewEmptyMap(ctx, p.ns)
		return nil, empty, err
	}
	if err != nil {
		return nil, prolly.Map{}, err
	}
	return &schema, rows, nil
}
