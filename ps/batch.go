package ps

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
)

var errBatchDone = errors.New("batch already applied or rolled back")

// RootView is a read-only view of the tables in one root value.
type RootView struct {
	p    *Persistence
	hash hash.Hash
	root *RootValue
}

func (p *Persistence) View(ctx context.Context, h hash.Hash) (*RootView, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	root, err := p.ReadRoot(ctx, h)
	if err != nil {
		return nil, err
	}
	return &RootView{p: p, hash: h, root: root}, nil
}

func (v *RootView) Hash() hash.Hash {
	return v.hash
}

func (v *RootView) TableNames() []string {
	return v.root.TableNames()
}

func (v *RootView) HasTable(name string) bool {
	_, ok := v.root.Resolve(name)
	return ok
}

// LoadTable returns a table's schema and rows. It fails with
// core.ErrNoSuchTable when the table is absent.
func (v *RootView) LoadTable(ctx context.Context, name string) (core.Table, prolly.Map, error) {
	return loadTable(ctx, v.p, v.root, name)
}

func loadTable(ctx context.Context, p *Persistence, root *RootValue, name string) (core.Table, prolly.Map, error) {
	th, ok := root.TableHash(name)
	if !ok {
		return core.Table{}, prolly.Map{}, fmt.Errorf("%w: %s", core.ErrNoSuchTable, name)
	}
	tv, err := p.ReadTable(ctx, th)
	if err != nil {
		return core.Table{}, prolly.Map{}, err
	}
	rows, err := prolly.NewMapFromRoot(ctx, p.ns, tv.Rows)
	if err != nil {
		return core.Table{}, prolly.Map{}, err
	}
	return tv.Schema, rows, nil
}

// Batch collects table changes on top of the working root and publishes them
// with a single compare-and-swap. Either every change becomes visible or none
// does.
type Batch struct {
	p          *Persistence
	base       WorkingSet
	root       *RootValue
	operations int
	started    bool
}

// BeginBatch starts a batch on the bound branch's current working root.
func (p *Persistence) BeginBatch(ctx context.Context) (*Batch, error) {
	ws, err := p.WorkingSet(ctx)
	if err != nil {
		return nil, err
	}
	root, err := p.ReadRoot(ctx, ws.Working)
	if err != nil {
		return nil, err
	}
	return &Batch{p: p, base: ws, root: root, started: true}, nil
}

// Base returns the working set the batch started from.
func (b *Batch) Base() WorkingSet {
	return b.base
}

func (b *Batch) TableNames() []string {
	return b.root.TableNames()
}

func (b *Batch) HasTable(name string) bool {
	_, ok := b.root.Resolve(name)
	return ok
}

// LoadTable sees the batch's own changes.
func (b *Batch) LoadTable(ctx context.Context, name string) (core.Table, prolly.Map, error) {
	return loadTable(ctx, b.p, b.root, name)
}

// CreateTable adds an empty table. It fails with core.ErrAlreadyExists when a
// table of that name exists.
func (b *Batch) CreateTable(ctx context.Context, schema core.Table) error {
	if !b.started {
		return errBatchDone
	}
	if b.HasTable(schema.Name) {
		return fmt.Errorf("table %s: %w", schema.Name, core.ErrAlreadyExists)
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	rows, err := prolly.NewEmptyMap(ctx, b.p.ns)
	if err != nil {
		return err
	}
	return b.PutTable(ctx, schema, rows)
}

// PutTable sets a table's schema and rows, replacing any table of that name.
func (b *Batch) PutTable(ctx context.Context, schema core.Table, rows prolly.Map) error {
	if !b.started {
		return errBatchDone
	}
	h, err := b.p.WriteTable(ctx, TableValue{Schema: schema, Rows: rows.HashOf()})
	if err != nil {
		return err
	}
	b.root = b.root.With(schema.Name, h)
	b.operations++
	return nil
}

func (b *Batch) DropTable(_ context.Context, name string) error {
	if !b.started {
		return errBatchDone
	}
	if !b.HasTable(name) {
		return fmt.Errorf("%w: %s", core.ErrNoSuchTable, name)
	}
	b.root = b.root.Without(name)
	b.operations++
	return nil
}

func (b *Batch) OperationCount() int {
	return b.operations
}

// Apply publishes the batch as the new working root and returns it. It fails
// with core.ErrConcurrentModification when the working root moved since the
// batch began, and with core.ErrNotFound when a GC swept the batch's chunks;
// nothing is published in either case.
func (b *Batch) Apply(ctx context.Context) (hash.Hash, error) {
	if !b.started {
		return hash.Hash{}, errBatchDone
	}
	b.started = false
	if b.operations == 0 {
		return b.base.Working, nil
	}
	h, err := b.p.WriteRoot(ctx, b.root)
	if err != nil {
		return hash.Hash{}, err
	}
	if h == b.base.Working {
		return h, nil
	}
	if err := b.p.swapWorkingRoot(ctx, b.base.Working, h, &b.base.gcGeneration); err != nil {
		return hash.Hash{}, err
	}
	return h, nil
}

// Fork returns an independent copy of the batch. Changes to the copy do not
// affect b; publish at most one of them.
func (b *Batch) Fork() *Batch {
	fork := *b
	return &fork
}

// Rollback discards the batch.
func (b *Batch) Rollback() {
	b.started = false
	b.operations = 0
}
