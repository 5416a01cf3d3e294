package ps

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

type TableState int

const (
	// Clean: working, staged and head agree.
	Clean TableState = iota
	// Modified: the working table differs from the staged one.
	Modified
	// Staged: the staged table differs from head and working equals staged.
	Staged
	// StagedAndModified: staged differs from head and working differs again.
	StagedAndModified
)

func (s TableState) String() string {
	switch s {
	case Clean:
		return "clean"
	case Modified:
		return "modified"
	case Staged:
		return "staged"
	case StagedAndModified:
		return "staged, modified"
	default:
		return fmt.Sprintf("TableState(%d)", int(s))
	}
}

type TableStatus struct {
	Name  string
	State TableState
	// New is set when head has no such table.
	New bool
	// Deleted is set when the working root has no such table.
	Deleted bool
}

// IsClean reports whether nothing is staged or modified.
func (ws WorkingSet) IsClean() bool {
	return ws.Staged == ws.HeadRoot && ws.Working == ws.Staged
}

// Status reports every table present in the head, staged or working root.
func (p *Persistence) Status(ctx context.Context) ([]TableStatus, error) {
	ws, err := p.WorkingSet(ctx)
	if err != nil {
		return nil, err
	}
	head, err := p.ReadRoot(ctx, ws.HeadRoot)
	if err != nil {
		return nil, err
	}
	staged, err := p.ReadRoot(ctx, ws.Staged)
	if err != nil {
		return nil, err
	}
	working, err := p.ReadRoot(ctx, ws.Working)
	if err != nil {
		return nil, err
	}

	names := map[string]bool{}
	for _, rv := range []*RootValue{head, staged, working} {
		for _, name := range rv.TableNames() {
			names[name] = true
		}
	}

	out := make([]TableStatus, 0, len(names))
	for name := range names {
		hh, inHead := head.TableHash(name)
		sh, inStaged := staged.TableHash(name)
		wh, inWorking := working.TableHash(name)

		stagedChange := inHead != inStaged || hh != sh
		modified := inStaged != inWorking || sh != wh

		st := TableStatus{Name: name, New: !inHead, Deleted: !inWorking}
		switch {
		case stagedChange && modified:
			st.State = StagedAndModified
		case stagedChange:
			st.State = Staged
		case modified:
			st.State = Modified
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func isAll(tables []string) bool {
	for _, t := range tables {
		if t == "*" || t == "." {
			return true
		}
	}
	return false
}

// Add stages the working version of the named tables. "*" or "." stages every
// table. Tables not named keep their staged state.
func (p *Persistence) Add(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return fmt.Errorf("%w: no tables to add", core.ErrInvalidArgument)
	}
	err := p.updateRoots(ctx, func(branch string, bs *BranchState) error {
		if isAll(tables) {
			bs.Staged = bs.Working
			return nil
		}
		staged, err := p.ReadRoot(ctx, bs.Staged)
		if err != nil {
			return err
		}
		working, err := p.ReadRoot(ctx, bs.Working)
		if err != nil {
			return err
		}
		for _, name := range tables {
			if h, ok := working.TableHash(name); ok {
				stored, _ := working.Resolve(name)
				staged = staged.With(stored, h)
			} else if staged.HasTable(name) {
				staged = staged.Without(name)
			} else {
				return fmt.Errorf("%w: %s", core.ErrNoSuchTable, name)
			}
		}
		h, err := p.WriteRoot(ctx, staged)
		if err != nil {
			return err
		}
		bs.Staged = h
		return nil
	})
	if err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"branch": p.CurrentBranch(), "tables": tables}).Debug("staged tables")
	return nil
}

// Reset unstages the named tables, or every table when none are named.
// Working changes are kept.
func (p *Persistence) Reset(ctx context.Context, tables ...string) error {
	return p.updateRoots(ctx, func(branch string, bs *BranchState) error {
		c, err := p.commits.ReadCommit(ctx, bs.Commit)
		if err != nil {
			return err
		}
		if len(tables) == 0 || isAll(tables) {
			bs.Staged = c.Root
			return nil
		}
		head, err := p.ReadRoot(ctx, c.Root)
		if err != nil {
			return err
		}
		staged, err := p.ReadRoot(ctx, bs.Staged)
		if err != nil {
			return err
		}
		for _, name := range tables {
			if h, ok := head.TableHash(name); ok {
				stored, _ := head.Resolve(name)
				staged = staged.With(stored, h)
			} else if staged.HasTable(name) {
				staged = staged.Without(name)
			} else {
				return fmt.Errorf("%w: %s", core.ErrNoSuchTable, name)
			}
		}
		var h hash.Hash
		h, err = p.WriteRoot(ctx, staged)
		if err != nil {
			return err
		}
		bs.Staged = h
		return nil
	})
}
