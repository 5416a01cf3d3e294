package ps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
)

const gcSweepParallelism = 8

type GCStats struct {
	Reachable    int
	Swept        int
	BytesFreed   uint64
	SweepSkipped bool
}

func (s GCStats) String() string {
	if s.SweepSkipped {
		return fmt.Sprintf("%d reachable chunks, store cannot sweep", s.Reachable)
	}
	return fmt.Sprintf("%d reachable chunks, %d swept (%s freed)",
		s.Reachable, s.Swept, humanize.Bytes(s.BytesFreed))
}

// marker is a concurrency safe set of reachable chunks.
type marker struct {
	mu   sync.Mutex
	seen hash.HashSet
}

// mark adds h and reports whether it was new.
func (m *marker) mark(h hash.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen.Has(h) {
		return false
	}
	m.seen.Insert(h)
	return true
}

// GC removes every chunk that no branch can reach through its commits or its
// staged and working roots. It holds the repository state lock from mark to
// sweep and bumps RepoState.GCGeneration, so publishes that began before it
// check their chunks survived. Stores that cannot list their chunks are only
// marked.
func (p *Persistence) GC(ctx context.Context) (GCStats, error) {
	if err := p.ensureInitialized(); err != nil {
		return GCStats{}, err
	}
	var stats GCStats
	var gcErr error
	var generation uint64
	err := p.state.Update(ctx, func(rs *RepoState) error {
		stats, gcErr = p.collect(ctx, rs)
		rs.GCGeneration++
		generation = rs.GCGeneration
		return nil
	})
	if err != nil {
		return GCStats{}, err
	}
	if stats.Swept > 0 {
		p.ns.Purge()
		p.commits.Purge()
	}
	if gcErr != nil {
		return stats, gcErr
	}
	if stats.SweepSkipped {
		p.log.WithField("chunks", stats.Reachable).Info("gc mark finished, store cannot sweep")
		return stats, nil
	}
	p.log.WithFields(logrus.Fields{
		"chunks":     stats.Reachable,
		"swept":      stats.Swept,
		"bytes":      stats.BytesFreed,
		"generation": generation,
	}).Info("gc finished")
	return stats, nil
}

// collect marks from rs and sweeps the rest. The caller holds the state lock.
func (p *Persistence) collect(ctx context.Context, rs *RepoState) (GCStats, error) {
	m := &marker{seen: hash.NewHashSet()}
	var roots []hash.Hash
	var heads []hash.Hash
	for _, bs := range rs.Branches {
		heads = append(heads, bs.Commit)
		roots = append(roots, bs.Staged, bs.Working)
	}
	for c, err := range p.commits.Log(ctx, heads...) {
		if err != nil {
			return GCStats{}, err
		}
		m.mark(c.Hash)
		roots = append(roots, c.Root)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		if !m.mark(root) {
			continue
		}
		g.Go(func() error {
			return p.markRoot(gctx, m, root)
		})
	}
	if err := g.Wait(); err != nil {
		return GCStats{}, fmt.Errorf("gc mark: %w", err)
	}
	stats := GCStats{Reachable: len(m.seen)}

	sweeper, ok := p.cs.(chunks.Sweeper)
	if !ok {
		stats.SweepSkipped = true
		return stats, nil
	}

	var garbage []hash.Hash
	err := sweeper.Hashes(ctx, func(h hash.Hash) error {
		if !m.seen.Has(h) {
			garbage = append(garbage, h)
		}
		return nil
	})
	if err != nil {
		return GCStats{}, fmt.Errorf("gc sweep: %w", err)
	}

	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(gcSweepParallelism)
	for _, h := range garbage {
		g.Go(func() error {
			data, err := p.cs.Get(gctx, h)
			if err != nil && !errors.Is(err, core.ErrCorruption) {
				return err
			}
			if err := sweeper.Delete(gctx, h); err != nil {
				return err
			}
			mu.Lock()
			stats.Swept++
			stats.BytesFreed += uint64(len(data))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("gc sweep: %w", err)
	}
	return stats, nil
}

// markRoot marks a root value, its table chunks and every tree node below them.
func (p *Persistence) markRoot(ctx context.Context, m *marker, h hash.Hash) error {
	rv, err := p.ReadRoot(ctx, h)
	if err != nil {
		return err
	}
	for _, name := range rv.TableNames() {
		th := rv.tables[name]
		if !m.mark(th) {
			continue
		}
		tv, err := p.ReadTable(ctx, th)
		if err != nil {
			return err
		}
		err = prolly.WalkNodes(ctx, p.ns, tv.Rows, func(node hash.Hash) (bool, error) {
			return m.mark(node), nil
		})
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
	}
	return nil
}

// verifyRoot fails with core.ErrNotFound unless the root value, its tables
// and every tree node below them are in the chunk store. Nodes are checked
// against the store, not the node cache.
func (p *Persistence) verifyRoot(ctx context.Context, h hash.Hash) error {
	rv, err := p.ReadRoot(ctx, h)
	if err != nil {
		return err
	}
	for _, name := range rv.TableNames() {
		tv, err := p.ReadTable(ctx, rv.tables[name])
		if err != nil {
			return err
		}
		err = prolly.WalkNodes(ctx, p.ns, tv.Rows, func(node hash.Hash) (bool, error) {
			ok, err := p.cs.Has(ctx, node)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, fmt.Errorf("table %s node %s: %w", name, node.Short(), core.ErrNotFound)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// verifySince checks roots when a GC ran after generation was observed.
func (p *Persistence) verifySince(ctx context.Context, rs *RepoState, generation uint64, roots ...hash.Hash) error {
	if rs.GCGeneration == generation {
		return nil
	}
	for _, h := range roots {
		if err := p.verifyRoot(ctx, h); err != nil {
			return fmt.Errorf("garbage collected while publishing %s: %w", h.Short(), err)
		}
	}
	return nil
}
