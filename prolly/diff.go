package prolly

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/nickyhof/TreeDB/hash"
)

type DiffType byte

const (
	AddedDiff    DiffType = 0
	ModifiedDiff DiffType = 1
	RemovedDiff  DiffType = 2
)

func (t DiffType) String() string {
	switch t {
	case AddedDiff:
		return "added"
	case ModifiedDiff:
		return "modified"
	case RemovedDiff:
		return "removed"
	default:
		return "unknown"
	}
}

type Diff struct {
	Type DiffType
	Key  []byte
	From []byte
	To   []byte
}

// DiffFn receives differences in key order. Returning ErrStopDiff ends the
// walk without error.
type DiffFn func(context.Context, Diff) error

var ErrStopDiff = errors.New("stop diff")

// diffEntry is either an unexpanded subtree or a single leaf entry.
type diffEntry struct {
	node  bool
	ref   hash.Hash
	level int
	key   []byte
	value []byte
}

// diffStack holds pending entries in reverse key order, next entry last.
type diffStack struct {
	entries []diffEntry
	ns      *NodeStore
}

func newDiffStack(m Map) *diffStack {
	s := &diffStack{ns: m.ns}
	if !m.root.Empty() {
		s.entries = append(s.entries, diffEntry{node: true, ref: m.root.hash, level: m.root.level})
	}
	return s
}

func (s *diffStack) empty() bool {
	return len(s.entries) == 0
}

func (s *diffStack) top() diffEntry {
	return s.entries[len(s.entries)-1]
}

func (s *diffStack) pop() diffEntry {
	e := s.top()
	s.entries = s.entries[:len(s.entries)-1]
	return e
}

// expand replaces the top subtree with its children.
func (s *diffStack) expand(ctx context.Context) error {
	e := s.pop()
	nd, err := s.ns.Read(ctx, e.ref)
	if err != nil {
		return err
	}
	for i := nd.Count() - 1; i >= 0; i-- {
		if nd.IsLeaf() {
			s.entries = append(s.entries, diffEntry{key: nd.keys[i], value: nd.values[i]})
		} else {
			s.entries = append(s.entries, diffEntry{node: true, ref: nd.refs[i], level: nd.level - 1})
		}
	}
	return nil
}

// nextEntry expands subtrees until a leaf entry is on top.
func (s *diffStack) nextEntry(ctx context.Context) (diffEntry, error) {
	for !s.empty() && s.top().node {
		if err := s.expand(ctx); err != nil {
			return diffEntry{}, err
		}
	}
	if s.empty() {
		return diffEntry{}, io.EOF
	}
	return s.pop(), nil
}

// DiffMaps reports every key whose value differs between from and to.
// Subtrees with equal hashes on both sides are skipped without being read.
func DiffMaps(ctx context.Context, from, to Map, fn DiffFn) error {
	err := diffMaps(ctx, from, to, fn)
	if errors.Is(err, ErrStopDiff) {
		return nil
	}
	return err
}

func diffMaps(ctx context.Context, from, to Map, fn DiffFn) error {
	if from.HashOf() == to.HashOf() {
		return nil
	}

	fs, ts := newDiffStack(from), newDiffStack(to)
	for !fs.empty() && !ts.empty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, t := fs.top(), ts.top()

		if f.node && t.node && f.ref == t.ref {
			fs.pop()
			ts.pop()
			continue
		}
		if f.node || t.node {
			expandFrom := f.node && (!t.node || f.level >= t.level)
			expandTo := t.node && (!f.node || t.level >= f.level)
			if expandFrom {
				if err := fs.expand(ctx); err != nil {
					return err
				}
			}
			if expandTo {
				if err := ts.expand(ctx); err != nil {
					return err
				}
			}
			continue
		}

		cmp := bytes.Compare(f.key, t.key)
		switch {
		case cmp < 0:
			fs.pop()
			if err := fn(ctx, Diff{Type: RemovedDiff, Key: f.key, From: f.value}); err != nil {
				return err
			}
		case cmp > 0:
			ts.pop()
			if err := fn(ctx, Diff{Type: AddedDiff, Key: t.key, To: t.value}); err != nil {
				return err
			}
		default:
			fs.pop()
			ts.pop()
			if !bytes.Equal(f.value, t.value) {
				if err := fn(ctx, Diff{Type: ModifiedDiff, Key: f.key, From: f.value, To: t.value}); err != nil {
					return err
				}
			}
		}
	}

	for {
		e, err := fs.nextEntry(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := fn(ctx, Diff{Type: RemovedDiff, Key: e.key, From: e.value}); err != nil {
			return err
		}
	}
	for {
		e, err := ts.nextEntry(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := fn(ctx, Diff{Type: AddedDiff, Key: e.key, To: e.value}); err != nil {
			return err
		}
	}
	return nil
}
