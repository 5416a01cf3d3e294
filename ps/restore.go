package ps

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
)

// Snapshot records asof (or the head commit when nil) under a branch name so
// it can be recovered later.
func (p *Persistence) Snapshot(ctx context.Context, name string, asof *Transaction) error {
	return p.Branch(ctx, name, asof)
}

// Recover replaces the working root with the root of a snapshot. Staged
// changes are kept.
func (p *Persistence) Recover(ctx context.Context, name string) error {
	txn, err := p.transactionAt(ctx, name)
	if err != nil {
		return err
	}
	return p.Restore(ctx, txn, nil)
}

func (p *Persistence) transactionAt(ctx context.Context, ref string) (Transaction, error) {
	h, err := p.ResolveRef(ctx, ref)
	if err != nil {
		return Transaction{}, err
	}
	c, err := p.commits.ReadCommit(ctx, h)
	if err != nil {
		return Transaction{}, err
	}
	return transactionOf(c), nil
}

// Restore copies tables from the root of asof into the working root. With a
// table name only that table is restored, and a table missing from asof is
// dropped from the working root. Without one the whole working root is
// replaced.
func (p *Persistence) Restore(ctx context.Context, asof Transaction, table *string) error {
	h, err := asof.Hash()
	if err != nil {
		return fmt.Errorf("%w: transaction id %q", core.ErrInvalidArgument, asof.Id)
	}
	c, err := p.commits.ReadCommit(ctx, h)
	if err != nil {
		return err
	}

	err = p.updateRoots(ctx, func(branch string, bs *BranchState) error {
		if table == nil {
			bs.Working = c.Root
			return nil
		}
		from, err := p.ReadRoot(ctx, c.Root)
		if err != nil {
			return err
		}
		working, err := p.ReadRoot(ctx, bs.Working)
		if err != nil {
			return err
		}
		if th, ok := from.TableHash(*table); ok {
			stored, _ := from.Resolve(*table)
			working = working.Without(*table).With(stored, th)
		} else if working.HasTable(*table) {
			working = working.Without(*table)
		} else {
			return fmt.Errorf("%w: %s", core.ErrNoSuchTable, *table)
		}
		bs.Working, err = p.WriteRoot(ctx, working)
		return err
	})
	if err != nil {
		return err
	}

	fields := logrus.Fields{"branch": p.CurrentBranch(), "commit": h.Short()}
	if table != nil {
		fields["table"] = *table
	}
	p.log.WithFields(fields).Info("restored working root")
	return nil
}
