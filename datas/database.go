package datas

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

const commitCacheSize = 1024

// Database reads and writes commits in a chunk store.
type Database struct {
	cs    chunks.ChunkStore
	cache *lru.Cache[hash.Hash, *Commit]
}

func NewDatabase(cs chunks.ChunkStore) *Database {
	cache, err := lru.New[hash.Hash, *Commit](commitCacheSize)
	if err != nil {
		panic(err)
	}
	return &Database{cs: cs, cache: cache}
}

type CommitOptions struct {
	// AllowEmpty permits a commit whose root equals its sole parent's root.
	AllowEmpty bool
}

// WriteCommit records root as a new commit on top of parents. Every parent
// must already exist. A zero timestamp means now; a timestamp earlier than a
// parent's is raised to the parent's.
func (db *Database) WriteCommit(ctx context.Context, root hash.Hash, parents []hash.Hash, meta CommitMeta, opts CommitOptions) (*Commit, error) {
	if has, err := db.cs.Has(ctx, root); err != nil {
		return nil, err
	} else if !has {
		return nil, fmt.Errorf("commit root %s: %w", root, core.ErrNotFound)
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Timestamp = meta.Timestamp.UTC()

	c := &Commit{Root: root, Meta: meta, Height: 1}
	seen := hash.NewHashSet()
	for _, ph := range parents {
		if seen.Has(ph) {
			continue
		}
		seen.Insert(ph)

		parent, err := db.ReadCommit(ctx, ph)
		if err != nil {
			return nil, fmt.Errorf("parent %s: %w", ph, err)
		}
		c.Parents = append(c.Parents, ph)
		if parent.Height >= c.Height {
			c.Height = parent.Height + 1
		}
		if c.Meta.Timestamp.Before(parent.Meta.Timestamp) {
			c.Meta.Timestamp = parent.Meta.Timestamp
		}
		if len(parents) == 1 && parent.Root == root && !opts.AllowEmpty {
			return nil, fmt.Errorf("root %s is unchanged from %s: %w", root.Short(), ph.Short(), core.ErrEmptyCommit)
		}
	}

	h, err := db.cs.Put(ctx, encodeCommit(c))
	if err != nil {
		return nil, fmt.Errorf("failed to write commit: %w", err)
	}
	c.Hash = h
	db.cache.Add(h, c)
	return c, nil
}

// Purge drops every cached commit.
func (db *Database) Purge() {
	db.cache.Purge()
}

func (db *Database) ReadCommit(ctx context.Context, h hash.Hash) (*Commit, error) {
	if c, ok := db.cache.Get(h); ok {
		return c, nil
	}
	data, err := db.cs.Get(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}
	c, err := decodeCommit(h, data)
	if err != nil {
		return nil, err
	}
	db.cache.Add(h, c)
	return c, nil
}
