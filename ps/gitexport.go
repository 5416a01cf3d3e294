package ps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/csvio"
	"github.com/nickyhof/TreeDB/datas"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
	"github.com/nickyhof/TreeDB/val"
)

type GitExportStats struct {
	Commits  int
	Branches int
}

// gitExporter mirrors commits into a git object store. Trees and blobs are
// memoized by the chunk they were built from.
type gitExporter struct {
	p       *Persistence
	storer  storage.Storer
	commits map[hash.Hash]plumbing.Hash
	trees   map[hash.Hash]plumbing.Hash
	tables  map[hash.Hash][]object.TreeEntry
}

// ExportGit writes the history of every branch into a bare git repository on
// fs. Each commit becomes a git commit whose tree holds <table>.csv and
// <table>.schema.json per table. Exporting again into the same repository
// updates the branch refs; unchanged commits map to the same git objects.
func (p *Persistence) ExportGit(ctx context.Context, fs billy.Filesystem) (GitExportStats, error) {
	if err := p.ensureInitialized(); err != nil {
		return GitExportStats{}, err
	}
	storer := filesystem.NewStorageWithOptions(fs, cache.NewObjectLRUDefault(), filesystem.Options{ExclusiveAccess: true})
	if _, err := git.Init(storer); err != nil && !errors.Is(err, git.ErrTargetDirNotEmpty) {
		return GitExportStats{}, fmt.Errorf("failed to init git repository: %w", err)
	}
	return p.exportGit(ctx, storer)
}

func (p *Persistence) exportGit(ctx context.Context, storer storage.Storer) (GitExportStats, error) {
	rs, err := p.state.Load(ctx)
	if err != nil {
		return GitExportStats{}, err
	}
	names := make([]string, 0, len(rs.Branches))
	heads := make([]hash.Hash, 0, len(rs.Branches))
	for name, bs := range rs.Branches {
		names = append(names, name)
		heads = append(heads, bs.Commit)
	}
	sort.Strings(names)

	var history []*datas.Commit
	for c, err := range p.commits.Log(ctx, heads...) {
		if err != nil {
			return GitExportStats{}, err
		}
		history = append(history, c)
	}
	// Log is newest first; parents must be written before children.
	slices.Reverse(history)

	x := &gitExporter{
		p:       p,
		storer:  storer,
		commits: map[hash.Hash]plumbing.Hash{},
		trees:   map[hash.Hash]plumbing.Hash{},
		tables:  map[hash.Hash][]object.TreeEntry{},
	}
	for _, c := range history {
		if err := x.exportCommit(ctx, c); err != nil {
			return GitExportStats{}, fmt.Errorf("commit %s: %w", c.Hash.Short(), err)
		}
	}

	for _, name := range names {
		ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), x.commits[rs.Branches[name].Commit])
		if err := storer.SetReference(ref); err != nil {
			return GitExportStats{}, fmt.Errorf("failed to update branch %s: %w", name, err)
		}
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(rs.Head))
	if err := storer.SetReference(head); err != nil {
		return GitExportStats{}, fmt.Errorf("failed to update HEAD: %w", err)
	}

	stats := GitExportStats{Commits: len(history), Branches: len(names)}
	p.log.WithFields(logrus.Fields{"commits": stats.Commits, "branches": stats.Branches}).Info("exported git history")
	return stats, nil
}

func (x *gitExporter) exportCommit(ctx context.Context, c *datas.Commit) error {
	tree, err := x.rootTree(ctx, c.Root)
	if err != nil {
		return err
	}
	parents := make([]plumbing.Hash, len(c.Parents))
	for i, ph := range c.Parents {
		gh, ok := x.commits[ph]
		if !ok {
			return fmt.Errorf("parent %s was not exported", ph.Short())
		}
		parents[i] = gh
	}

	sig := object.Signature{Name: c.Meta.Name, Email: c.Meta.Email, When: c.Meta.Timestamp}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      c.Meta.Message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := x.storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return fmt.Errorf("failed to encode commit: %w", err)
	}
	gh, err := x.storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("failed to store commit: %w", err)
	}
	x.commits[c.Hash] = gh
	return nil
}

func (x *gitExporter) rootTree(ctx context.Context, root hash.Hash) (plumbing.Hash, error) {
	if gh, ok := x.trees[root]; ok {
		return gh, nil
	}
	rv, err := x.p.ReadRoot(ctx, root)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	var entries []object.TreeEntry
	for _, name := range rv.TableNames() {
		tableEntries, err := x.tableEntries(ctx, rv.tables[name])
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("table %s: %w", name, err)
		}
		entries = append(entries, tableEntries...)
	}
	gh, err := x.buildTree(entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	x.trees[root] = gh
	return gh, nil
}

func (x *gitExporter) tableEntries(ctx context.Context, th hash.Hash) ([]object.TreeEntry, error) {
	if entries, ok := x.tables[th]; ok {
		return entries, nil
	}
	tv, err := x.p.ReadTable(ctx, th)
	if err != nil {
		return nil, err
	}

	schema, err := json.MarshalIndent(tv.Schema, "", "  ")
	if err != nil {
		return nil, err
	}
	schemaBlob, err := x.createBlob(append(schema, '\n'))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeTableCSV(ctx, x.p.ns, tv, &buf); err != nil {
		return nil, err
	}
	csvBlob, err := x.createBlob(buf.Bytes())
	if err != nil {
		return nil, err
	}

	entries := []object.TreeEntry{
		{Name: tv.Schema.Name + ".csv", Mode: filemode.Regular, Hash: csvBlob},
		{Name: tv.Schema.Name + ".schema.json", Mode: filemode.Regular, Hash: schemaBlob},
	}
	x.tables[th] = entries
	return entries, nil
}

// writeTableCSV writes every row of a table, in key order, with a header.
func writeTableCSV(ctx context.Context, ns *prolly.NodeStore, tv TableValue, w io.Writer) error {
	rows, err := prolly.NewMapFromRoot(ctx, ns, tv.Rows)
	if err != nil {
		return err
	}
	it, err := rows.IterAll(ctx)
	if err != nil {
		return err
	}
	cw := csvio.NewWriter(w, tv.Schema)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	for {
		_, value, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		row, err := val.DecodeRow(tv.Schema, value)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// createBlob stores data as a git blob.
func (x *gitExporter) createBlob(data []byte) (plumbing.Hash, error) {
	obj := x.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	gh, err := x.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	return gh, nil
}

// buildTree stores a flat tree. Git requires entries sorted by name.
func (x *gitExporter) buildTree(entries []object.TreeEntry) (plumbing.Hash, error) {
	entries = slices.Clone(entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	tree := &object.Tree{Entries: entries}
	obj := x.storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	gh, err := x.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	return gh, nil
}
