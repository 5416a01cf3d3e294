package datas

import (
	"container/heap"
	"context"
	"fmt"
	"iter"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

// commitQueue pops the newest commit first. Ties go to the greater height,
// so a child always comes out before its parents, then to the smaller hash.
type commitQueue []*Commit

func (q commitQueue) Len() int { return len(q) }

func (q commitQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if !a.Meta.Timestamp.Equal(b.Meta.Timestamp) {
		return a.Meta.Timestamp.After(b.Meta.Timestamp)
	}
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return a.Hash.Less(b.Hash)
}

func (q commitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *commitQueue) Push(x any) { *q = append(*q, x.(*Commit)) }

func (q *commitQueue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

// Log yields every commit reachable from the given heads exactly once, newest
// first. Iteration stops at the first error.
func (db *Database) Log(ctx context.Context, heads ...hash.Hash) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		seen := hash.NewHashSet()
		q := &commitQueue{}
		push := func(h hash.Hash) error {
			if seen.Has(h) {
				return nil
			}
			seen.Insert(h)
			c, err := db.ReadCommit(ctx, h)
			if err != nil {
				return err
			}
			heap.Push(q, c)
			return nil
		}

		for _, h := range heads {
			if err := push(h); err != nil {
				yield(nil, err)
				return
			}
		}
		for q.Len() > 0 {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			c := heap.Pop(q).(*Commit)
			if !yield(c, nil) {
				return
			}
			for _, p := range c.Parents {
				if err := push(p); err != nil {
					yield(nil, err)
					return
				}
			}
		}
	}
}

const (
	fromA = 1 << iota
	fromB
)

// heightQueue pops the highest commit first.
type heightQueue []*Commit

func (q heightQueue) Len() int { return len(q) }

func (q heightQueue) Less(i, j int) bool {
	if q[i].Height != q[j].Height {
		return q[i].Height > q[j].Height
	}
	return q[i].Hash.Less(q[j].Hash)
}

func (q heightQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *heightQueue) Push(x any) { *q = append(*q, x.(*Commit)) }

func (q *heightQueue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

// MergeBase returns the highest common ancestor of a and b. A commit is its
// own ancestor. It fails with core.ErrNotFound when the histories are disjoint.
func (db *Database) MergeBase(ctx context.Context, a, b hash.Hash) (hash.Hash, error) {
	if a == b {
		return a, nil
	}

	flags := map[hash.Hash]int{}
	q := &heightQueue{}
	add := func(h hash.Hash, f int) error {
		if old, ok := flags[h]; ok {
			flags[h] = old | f
			return nil
		}
		c, err := db.ReadCommit(ctx, h)
		if err != nil {
			return err
		}
		flags[h] = f
		heap.Push(q, c)
		return nil
	}
	if err := add(a, fromA); err != nil {
		return hash.Hash{}, err
	}
	if err := add(b, fromB); err != nil {
		return hash.Hash{}, err
	}

	// Children always have a greater height than their parents, so every flag
	// reaches a commit before it is popped.
	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return hash.Hash{}, err
		}
		c := heap.Pop(q).(*Commit)
		f := flags[c.Hash]
		if f == fromA|fromB {
			return c.Hash, nil
		}
		for _, p := range c.Parents {
			if err := add(p, f); err != nil {
				return hash.Hash{}, err
			}
		}
	}
	return hash.Hash{}, fmt.Errorf("no common ancestor of %s and %s: %w", a.Short(), b.Short(), core.ErrNotFound)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (db *Database) IsAncestor(ctx context.Context, ancestor, descendant hash.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	target, err := db.ReadCommit(ctx, ancestor)
	if err != nil {
		return false, err
	}

	seen := hash.NewHashSet(descendant)
	stack := []hash.Hash{descendant}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, err := db.ReadCommit(ctx, h)
		if err != nil {
			return false, err
		}
		for _, p := range c.Parents {
			if p == ancestor {
				return true, nil
			}
			if seen.Has(p) {
				continue
			}
			seen.Insert(p)
			pc, err := db.ReadCommit(ctx, p)
			if err != nil {
				return false, err
			}
			if pc.Height > target.Height {
				stack = append(stack, p)
			}
		}
	}
	return false, nil
}
