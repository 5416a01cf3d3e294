package ps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

func validateBranchName(name string) error {
	switch {
	case name == "", strings.EqualFold(name, "HEAD"):
		return fmt.Errorf("%w: invalid branch name %q", core.ErrInvalidArgument, name)
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"),
		strings.HasSuffix(name, ".lock"), strings.Contains(name, ".."), strings.Contains(name, "//"):
		return fmt.Errorf("%w: invalid branch name %q", core.ErrInvalidArgument, name)
	case strings.ContainsAny(name, " \t\n~^:?*[\\"):
		return fmt.Errorf("%w: invalid branch name %q", core.ErrInvalidArgument, name)
	}
	return nil
}

// Branch creates a new branch at the bound branch's head or at a specific
// transaction. The new branch starts with a clean working set.
func (p *Persistence) Branch(ctx context.Context, name string, from *Transaction) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if err := validateBranchName(name); err != nil {
		return err
	}

	var start hash.Hash
	if from != nil {
		h, err := p.ResolveRef(ctx, from.Id)
		if err != nil {
			return err
		}
		start = h
	} else {
		_, bs, err := p.branchState(ctx)
		if err != nil {
			return err
		}
		start = bs.Commit
	}
	c, err := p.commits.ReadCommit(ctx, start)
	if err != nil {
		return err
	}

	err = p.state.Update(ctx, func(rs *RepoState) error {
		if _, ok := rs.Branches[name]; ok {
			return fmt.Errorf("branch %s: %w", name, core.ErrAlreadyExists)
		}
		rs.Branches[name] = BranchState{Commit: start, Staged: c.Root, Working: c.Root}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"branch": name, "commit": start.String()}).Info("created branch")
	return nil
}

// Checkout binds the handle to an existing branch and makes it the
// repository's HEAD. Each branch keeps its own working set.
func (p *Persistence) Checkout(ctx context.Context, name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	err := p.state.Update(ctx, func(rs *RepoState) error {
		if _, err := rs.branch(name); err != nil {
			return err
		}
		rs.Head = name
		return nil
	})
	if err != nil {
		return err
	}
	p.setBranch(name)
	p.log.WithField("branch", name).Debug("checked out branch")
	return nil
}

// ListBranches returns all branch names in sorted order.
func (p *Persistence) ListBranches(ctx context.Context) ([]string, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	rs, err := p.state.Load(ctx)
	if err != nil {
		return nil, err
	}
	branches := make([]string, 0, len(rs.Branches))
	for name := range rs.Branches {
		branches = append(branches, name)
	}
	sort.Strings(branches)
	return branches, nil
}

// DeleteBranch deletes a branch other than the one this handle is bound to.
func (p *Persistence) DeleteBranch(ctx context.Context, name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if name == p.CurrentBranch() {
		return fmt.Errorf("%w: cannot delete the currently checked out branch '%s'", core.ErrInvalidArgument, name)
	}
	err := p.state.Update(ctx, func(rs *RepoState) error {
		if _, err := rs.branch(name); err != nil {
			return err
		}
		if rs.Head == name {
			return fmt.Errorf("%w: branch '%s' is the repository HEAD", core.ErrInvalidArgument, name)
		}
		delete(rs.Branches, name)
		return nil
	})
	if err != nil {
		return err
	}
	p.log.WithField("branch", name).Info("deleted branch")
	return nil
}

// RenameBranch renames a branch, keeping its commit and working set.
func (p *Persistence) RenameBranch(ctx context.Context, oldName, newName string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if err := validateBranchName(newName); err != nil {
		return err
	}
	err := p.state.Update(ctx, func(rs *RepoState) error {
		bs, err := rs.branch(oldName)
		if err != nil {
			return err
		}
		if _, ok := rs.Branches[newName]; ok {
			return fmt.Errorf("branch %s: %w", newName, core.ErrAlreadyExists)
		}
		delete(rs.Branches, oldName)
		rs.Branches[newName] = bs
		if rs.Head == oldName {
			rs.Head = newName
		}
		return nil
	})
	if err != nil {
		return err
	}
	if p.CurrentBranch() == oldName {
		p.setBranch(newName)
	}
	p.log.WithFields(logrus.Fields{"from": oldName, "to": newName}).Info("renamed branch")
	return nil
}
