package op

import (
	"context"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/ps"
)

// TableSource is a set of tables. ps.RootView and ps.Batch implement it.
type TableSource interface {
	TableNames() []string
	HasTable(name string) bool
	LoadTable(ctx context.Context, name string) (core.Table, prolly.Map, error)
}

// TableSink accepts table writes. ps.Batch implements it.
type TableSink interface {
	TableSource
	CreateTable(ctx context.Context, schema core.Table) error
	PutTable(ctx context.Context, schema core.Table, rows prolly.Map) error
	DropTable(ctx context.Context, name string) error
}

var (
	_ TableSink   = (*ps.Batch)(nil)
	_ TableSource = (*ps.RootView)(nil)
)

type DatabaseOp struct {
	Source TableSource
}

func NewDatabaseOp(src TableSource) *DatabaseOp {
	return &DatabaseOp{Source: src}
}

// GetDatabase opens a read-only view of the tables in root.
func GetDatabase(ctx context.Context, p *ps.Persistence, root hash.Hash) (*DatabaseOp, error) {
	view, err := p.View(ctx, root)
	if err != nil {
		return nil, err
	}
	return NewDatabaseOp(view), nil
}

func (op *DatabaseOp) TableNames() []string {
	return op.Source.TableNames()
}

func (op *DatabaseOp) GetTable(ctx context.Context, name string) (*TableOp, error) {
	return GetTable(ctx, op.Source, name)
}

// Tables loads every table, in name order.
func (op *DatabaseOp) Tables(ctx context.Context) ([]*TableOp, error) {
	names := op.Source.TableNames()
	tables := make([]*TableOp, 0, len(names))
	for _, name := range names {
		t, err := op.GetTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
