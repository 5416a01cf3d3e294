package ps

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

// WorkingSet is a snapshot of a branch: its head commit, the root of that
// commit, and the staged and working roots built on top of it.
type WorkingSet struct {
	Branch   string
	Head     hash.Hash
	HeadRoot hash.Hash
	Staged   hash.Hash
	Working  hash.Hash

	gcGeneration uint64
}

func (p *Persistence) WorkingSet(ctx context.Context) (WorkingSet, error) {
	if err := p.ensureInitialized(); err != nil {
		return WorkingSet{}, err
	}
	rs, err := p.state.Load(ctx)
	if err != nil {
		return WorkingSet{}, err
	}
	name := p.CurrentBranch()
	bs, err := rs.branch(name)
	if err != nil {
		return WorkingSet{}, err
	}
	c, err := p.commits.ReadCommit(ctx, bs.Commit)
	if err != nil {
		return WorkingSet{}, err
	}
	return WorkingSet{
		Branch:   name,
		Head:     bs.Commit,
		HeadRoot: c.Root,
		Staged:   bs.Staged,
		Working:  bs.Working,

		gcGeneration: rs.GCGeneration,
	}, nil
}

// UpdateWorkingRoot replaces the working root with newRoot if it still equals
// expected, and fails with core.ErrConcurrentModification otherwise. Every
// chunk of newRoot must be in the store; it fails with core.ErrNotFound when
// one is missing.
func (p *Persistence) UpdateWorkingRoot(ctx context.Context, expected, newRoot hash.Hash) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if err := p.verifyRoot(ctx, newRoot); err != nil {
		return fmt.Errorf("working root %s: %w", newRoot.Short(), err)
	}
	return p.swapWorkingRoot(ctx, expected, newRoot, nil)
}

// swapWorkingRoot is the compare-and-swap behind UpdateWorkingRoot. With
// generation set, newRoot is verified only if a GC finished since then.
func (p *Persistence) swapWorkingRoot(ctx context.Context, expected, newRoot hash.Hash, generation *uint64) error {
	name := p.CurrentBranch()
	err := p.state.Update(ctx, func(rs *RepoState) error {
		bs, err := rs.branch(name)
		if err != nil {
			return err
		}
		if bs.Working != expected {
			return fmt.Errorf("working set of %s moved from %s to %s: %w",
				name, expected.Short(), bs.Working.Short(), core.ErrConcurrentModification)
		}
		if generation != nil {
			if err := p.verifySince(ctx, rs, *generation, newRoot); err != nil {
				return err
			}
		}
		bs.Working = newRoot
		rs.Branches[name] = bs
		return nil
	})
	if err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"branch": name, "working": newRoot.Short()}).Debug("updated working root")
	return nil
}

// updateRoots applies fn to the bound branch's state under the state lock.
func (p *Persistence) updateRoots(ctx context.Context, fn func(name string, bs *BranchState) error) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	name := p.CurrentBranch()
	return p.state.Update(ctx, func(rs *RepoState) error {
		bs, err := rs.branch(name)
		if err != nil {
			return err
		}
		if err := fn(name, &bs); err != nil {
			return err
		}
		rs.Branches[name] = bs
		return nil
	})
}
