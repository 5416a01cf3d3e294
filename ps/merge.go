package ps

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/datas"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
)

// MergeStrategy defines how to handle merge
type MergeStrategy string

const (
	// MergeStrategyFastForwardOnly only allows fast-forward merges
	MergeStrategyFastForwardOnly MergeStrategy = "fast-forward-only"
	// MergeStrategyRowLevel merges diverged branches row by row and resolves
	// conflicting rows in favor of the newer side
	MergeStrategyRowLevel MergeStrategy = "row-level"
	// MergeStrategyStrict merges row by row and fails on any conflicting row
	MergeStrategyStrict MergeStrategy = "strict"
)

// MergeOptions configures merge behavior
type MergeOptions struct {
	Strategy MergeStrategy
	Message  string
}

// DefaultMergeOptions returns the default merge options (strict row-level merge)
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		Strategy: MergeStrategyStrict,
	}
}

// RowConflict is a row both sides changed differently. A nil Key marks a
// whole-table conflict, such as one side dropping a table the other changed.
type RowConflict struct {
	Table  string
	Key    []byte
	Base   []byte // nil if the row didn't exist at base
	Head   []byte // nil if deleted in HEAD
	Source []byte // nil if deleted in SOURCE
	// Resolved is the surviving value under the row-level strategy.
	Resolved []byte
}

type MergeResult struct {
	Transaction Transaction
	FastForward bool
	UpToDate    bool
	MergedRows  int
	Conflicts   []RowConflict
}

// Merge merges source (a branch name or commit) into the bound branch. The
// working set must be clean.
func (p *Persistence) Merge(ctx context.Context, source string, identity core.Identity, opts MergeOptions) (MergeResult, error) {
	ws, err := p.WorkingSet(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	if !ws.IsClean() {
		return MergeResult{}, fmt.Errorf("%w: branch %s has uncommitted changes", core.ErrInvalidArgument, ws.Branch)
	}

	srcHash, err := p.ResolveRef(ctx, source)
	if err != nil {
		return MergeResult{}, err
	}
	srcCommit, err := p.commits.ReadCommit(ctx, srcHash)
	if err != nil {
		return MergeResult{}, err
	}
	headCommit, err := p.commits.ReadCommit(ctx, ws.Head)
	if err != nil {
		return MergeResult{}, err
	}
	log := p.log.WithFields(logrus.Fields{"branch": ws.Branch, "source": source})

	// Check if source is ancestor of HEAD (already merged)
	upToDate, err := p.commits.IsAncestor(ctx, srcHash, ws.Head)
	if err != nil {
		return MergeResult{}, err
	}
	if upToDate {
		return MergeResult{Transaction: transactionOf(headCommit), UpToDate: true}, nil
	}

	// Check if can fast-forward
	canFF, err := p.commits.IsAncestor(ctx, ws.Head, srcHash)
	if err != nil {
		return MergeResult{}, err
	}
	if canFF {
		root := srcCommit.Root
		if err := p.advanceBranch(ctx, ws, srcHash, &root); err != nil {
			return MergeResult{}, err
		}
		log.WithField("commit", srcHash.String()).Info("fast-forwarded")
		return MergeResult{Transaction: transactionOf(srcCommit), FastForward: true}, nil
	}

	if opts.Strategy == MergeStrategyFastForwardOnly {
		return MergeResult{}, fmt.Errorf("cannot fast-forward merge - branches have diverged: %w", core.ErrMergeConflict)
	}

	baseHash, err := p.commits.MergeBase(ctx, ws.Head, srcHash)
	if err != nil {
		return MergeResult{}, fmt.Errorf("failed to find merge base: %w", err)
	}
	baseCommit, err := p.commits.ReadCommit(ctx, baseHash)
	if err != nil {
		return MergeResult{}, err
	}

	m := &rootMerger{
		p:         p,
		headNewer: !srcCommit.Meta.Timestamp.After(headCommit.Meta.Timestamp),
	}
	merged, err := m.mergeRoots(ctx, baseCommit.Root, headCommit.Root, srcCommit.Root)
	if err != nil {
		return MergeResult{}, err
	}
	result := MergeResult{MergedRows: m.mergedRows, Conflicts: m.conflicts}
	if len(m.conflicts) > 0 && opts.Strategy != MergeStrategyRowLevel {
		return result, fmt.Errorf("%d conflicting rows merging %s into %s: %w",
			len(m.conflicts), source, ws.Branch, core.ErrMergeConflict)
	}

	rootHash, err := p.WriteRoot(ctx, merged)
	if err != nil {
		return MergeResult{}, err
	}
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", source, ws.Branch)
	}
	c, err := p.commits.WriteCommit(ctx, rootHash, []hash.Hash{ws.Head, srcHash}, datas.CommitMeta{
		Name:    identity.Name,
		Email:   identity.Email,
		Message: message,
	}, datas.CommitOptions{AllowEmpty: true})
	if err != nil {
		return MergeResult{}, err
	}
	if err := p.advanceBranch(ctx, ws, c.Hash, &rootHash); err != nil {
		return MergeResult{}, err
	}

	log.WithFields(logrus.Fields{
		"commit":    c.Hash.String(),
		"rows":      m.mergedRows,
		"conflicts": len(m.conflicts),
	}).Info("merged")
	result.Transaction = transactionOf(c)
	return result, nil
}

type rootMerger struct {
	p         *Persistence
	headNewer bool

	mergedRows int
	conflicts  []RowConflict
}

func (m *rootMerger) mergeRoots(ctx context.Context, baseHash, headHash, srcHash hash.Hash) (*RootValue, error) {
	base, err := m.p.ReadRoot(ctx, baseHash)
	if err != nil {
		return nil, err
	}
	head, err := m.p.ReadRoot(ctx, headHash)
	if err != nil {
		return nil, err
	}
	src, err := m.p.ReadRoot(ctx, srcHash)
	if err != nil {
		return nil, err
	}

	names := map[string]bool{}
	for _, rv := range []*RootValue{base, head, src} {
		for _, name := range rv.TableNames() {
			names[name] = true
		}
	}

	merged := head
	for name := range names {
		h, keep, err := m.mergeTable(ctx, name, base, head, src)
		if err != nil {
			return nil, err
		}
		if keep {
			merged = merged.With(name, h)
		} else {
			merged = merged.Without(name)
		}
	}
	return merged, nil
}

// mergeTable returns the merged table chunk and whether the table survives.
func (m *rootMerger) mergeTable(ctx context.Context, name string, base, head, src *RootValue) (hash.Hash, bool, error) {
	bh, inBase := base.TableHash(name)
	hh, inHead := head.TableHash(name)
	sh, inSource := src.TableHash(name)

	switch {
	case inHead == inSource && hh == sh:
		return hh, inHead, nil
	case inBase == inSource && bh == sh:
		// Only HEAD changed
		return hh, inHead, nil
	case inBase == inHead && bh == hh:
		// Only SOURCE changed
		m.mergedRows++
		return sh, inSource, nil
	case !inHead || !inSource:
		return m.tableConflict(name, hh, inHead, sh, inSource)
	}

	headTV, err := m.p.ReadTable(ctx, hh)
	if err != nil {
		return hash.Hash{}, false, err
	}
	srcTV, err := m.p.ReadTable(ctx, sh)
	if err != nil {
		return hash.Hash{}, false, err
	}
	if !sameSchema(headTV.Schema, srcTV.Schema) {
		return m.tableConflict(name, hh, inHead, sh, inSource)
	}

	var baseRows prolly.Map
	if inBase {
		baseTV, err := m.p.ReadTable(ctx, bh)
		if err != nil {
			return hash.Hash{}, false, err
		}
		if !sameSchema(baseTV.Schema, headTV.Schema) {
			return m.tableConflict(name, hh, inHead, sh, inSource)
		}
		baseRows, err = prolly.NewMapFromRoot(ctx, m.p.ns, baseTV.Rows)
		if err != nil {
			return hash.Hash{}, false, err
		}
	} else {
		baseRows, err = prolly.NewEmptyMap(ctx, m.p.ns)
		if err != nil {
			return hash.Hash{}, false, err
		}
	}
	headRows, err := prolly.NewMapFromRoot(ctx, m.p.ns, headTV.Rows)
	if err != nil {
		return hash.Hash{}, false, err
	}
	srcRows, err := prolly.NewMapFromRoot(ctx, m.p.ns, srcTV.Rows)
	if err != nil {
		return hash.Hash{}, false, err
	}

	var edits []prolly.Edit
	err = prolly.DiffMaps(ctx, baseRows, srcRows, func(ctx context.Context, d prolly.Diff) error {
		hv, inHeadRow, err := headRows.Get(ctx, d.Key)
		if err != nil {
			return err
		}
		edit := prolly.Edit{Key: d.Key, Value: d.To, Delete: d.Type == prolly.RemovedDiff}

		headUnchanged := (d.Type == prolly.AddedDiff && !inHeadRow) ||
			(d.Type != prolly.AddedDiff && inHeadRow && bytes.Equal(hv, d.From))
		sameResult := (d.Type == prolly.RemovedDiff && !inHeadRow) ||
			(d.Type != prolly.RemovedDiff && inHeadRow && bytes.Equal(hv, d.To))

		switch {
		case headUnchanged:
			edits = append(edits, edit)
			m.mergedRows++
		case sameResult:
		default:
			conflict := RowConflict{Table: name, Key: d.Key, Base: d.From, Source: d.To}
			if inHeadRow {
				conflict.Head = hv
			}
			conflict.Resolved = conflict.Head
			if !m.headNewer {
				conflict.Resolved = d.To
				edits = append(edits, edit)
				m.mergedRows++
			}
			m.conflicts = append(m.conflicts, conflict)
		}
		return nil
	})
	if err != nil {
		return hash.Hash{}, false, err
	}

	rows, err := headRows.Mutate(ctx, edits)
	if err != nil {
		return hash.Hash{}, false, err
	}
	h, err := m.p.WriteTable(ctx, TableValue{Schema: headTV.Schema, Rows: rows.HashOf()})
	if err != nil {
		return hash.Hash{}, false, err
	}
	return h, true, nil
}

// tableConflict records a whole-table conflict and keeps the newer side.
func (m *rootMerger) tableConflict(name string, hh hash.Hash, inHead bool, sh hash.Hash, inSource bool) (hash.Hash, bool, error) {
	m.conflicts = append(m.conflicts, RowConflict{Table: name})
	if m.headNewer {
		return hh, inHead, nil
	}
	return sh, inSource, nil
}

func sameSchema(a, b core.Table) bool {
	am, err := a.Marshal()
	if err != nil {
		return false
	}
	bm, err := b.Marshal()
	if err != nil {
		return false
	}
	return bytes.Equal(am, bm)
}
