package ps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/datas"
	"github.com/nickyhof/TreeDB/hash"
	"github.com/nickyhof/TreeDB/prolly"
)

const (
	MetadataDir   = ".treedb"
	DefaultBranch = "main"
	InitMessage   = "Initialize data repository"
)

var ErrNotInitialized = errors.New("persistence layer not initialized")

type Options struct {
	Logger logrus.FieldLogger
	// Identity authors the initial commit.
	Identity core.Identity
	Storage  StorageOptions
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (o Options) identity() core.Identity {
	if o.Identity.Name == "" && o.Identity.Email == "" {
		return core.Identity{Name: "treedb", Email: "treedb@localhost"}
	}
	return o.Identity
}

// Persistence is a handle on a repository bound to one branch. Handles made
// with Session share stores but track their branch independently.
type Persistence struct {
	cs      chunks.ChunkStore
	ns      *prolly.NodeStore
	commits *datas.Database
	state   StateStore
	log     logrus.FieldLogger
	dir     string
	owner   bool

	mu     sync.RWMutex
	branch string
}

func newPersistence(cs chunks.ChunkStore, state StateStore, dir string, opts Options) *Persistence {
	return &Persistence{
		cs:      cs,
		ns:      prolly.NewNodeStore(cs, opts.Storage.CacheSize),
		commits: datas.NewDatabase(cs),
		state:   state,
		log:     opts.logger(),
		dir:     dir,
		owner:   true,
		branch:  DefaultBranch,
	}
}

// Init creates a repository in dir. It fails with core.ErrAlreadyExists when
// dir already holds one.
func Init(ctx context.Context, dir string, opts Options) (*Persistence, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root := osfs.New(dir)
	if _, err := root.Stat(MetadataDir); err == nil {
		return nil, fmt.Errorf("repository at %s: %w", dir, core.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := root.MkdirAll(MetadataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", MetadataDir, err)
	}

	meta := osfs.New(filepath.Join(dir, MetadataDir))
	cs, err := openChunkStore(ctx, meta, opts.Storage, opts.logger())
	if err != nil {
		return nil, err
	}
	state := newFileStateStore(meta)
	p := newPersistence(cs, state, dir, opts)

	rs, err := p.initialize(ctx, opts.identity())
	if err != nil {
		cs.Close()
		return nil, err
	}
	if err := state.save(rs); err != nil {
		cs.Close()
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"dir": dir, "branch": rs.Head}).Info("initialized repository")
	return p, nil
}

// Open opens the repository in dir. It fails with core.ErrNotFound when there
// is none.
func Open(ctx context.Context, dir string, opts Options) (*Persistence, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := osfs.New(dir).Stat(MetadataDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no repository at %s: %w", dir, core.ErrNotFound)
		}
		return nil, err
	}

	meta := osfs.New(filepath.Join(dir, MetadataDir))
	state := newFileStateStore(meta)
	rs, err := state.Load(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := openChunkStore(ctx, meta, opts.Storage, opts.logger())
	if err != nil {
		return nil, err
	}
	p := newPersistence(cs, state, dir, opts)
	p.branch = rs.Head
	return p, nil
}

// New initializes a repository on cs with in-memory state.
func New(ctx context.Context, cs chunks.ChunkStore, opts Options) (*Persistence, error) {
	p := newPersistence(cs, nil, "", opts)
	rs, err := p.initialize(ctx, opts.identity())
	if err != nil {
		return nil, err
	}
	p.state = newMemoryStateStore(rs)
	return p, nil
}

func NewMemoryPersistence(opts Options) (*Persistence, error) {
	return New(context.Background(), chunks.NewMemoryStore(), opts)
}

// initialize writes the empty root and the initial commit.
func (p *Persistence) initialize(ctx context.Context, identity core.Identity) (*RepoState, error) {
	root, err := p.WriteRoot(ctx, EmptyRootValue())
	if err != nil {
		return nil, err
	}
	c, err := p.commits.WriteCommit(ctx, root, nil, datas.CommitMeta{
		Name:    identity.Name,
		Email:   identity.Email,
		Message: InitMessage,
	}, datas.CommitOptions{})
	if err != nil {
		return nil, err
	}
	return newRepoState(DefaultBranch, c.Hash, root), nil
}

// Session returns a handle sharing this repository's stores, bound to the
// same branch. Closing a session does not close the stores.
func (p *Persistence) Session() *Persistence {
	return &Persistence{
		cs:      p.cs,
		ns:      p.ns,
		commits: p.commits,
		state:   p.state,
		log:     p.log,
		dir:     p.dir,
		branch:  p.CurrentBranch(),
	}
}

func (p *Persistence) IsInitialized() bool {
	return p != nil && p.cs != nil && p.state != nil
}

func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

func (p *Persistence) Close() error {
	if p == nil || !p.owner || p.cs == nil {
		return nil
	}
	return p.cs.Close()
}

// Dir is the repository directory, or "" for an in-memory repository.
func (p *Persistence) Dir() string {
	return p.dir
}

func (p *Persistence) ChunkStore() chunks.ChunkStore {
	return p.cs
}

func (p *Persistence) NodeStore() *prolly.NodeStore {
	return p.ns
}

func (p *Persistence) Commits() *datas.Database {
	return p.commits
}

func (p *Persistence) Logger() logrus.FieldLogger {
	return p.log
}

// CurrentBranch returns the branch this handle is bound to.
func (p *Persistence) CurrentBranch() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.branch
}

func (p *Persistence) setBranch(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.branch = name
}

// branchState returns the current state of the bound branch.
func (p *Persistence) branchState(ctx context.Context) (string, BranchState, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", BranchState{}, err
	}
	rs, err := p.state.Load(ctx)
	if err != nil {
		return "", BranchState{}, err
	}
	name := p.CurrentBranch()
	bs, err := rs.branch(name)
	return name, bs, err
}

// HeadCommit returns the commit the bound branch points at.
func (p *Persistence) HeadCommit(ctx context.Context) (*datas.Commit, error) {
	_, bs, err := p.branchState(ctx)
	if err != nil {
		return nil, err
	}
	return p.commits.ReadCommit(ctx, bs.Commit)
}

// HeadRoot returns the root value of the bound branch's head commit.
func (p *Persistence) HeadRoot(ctx context.Context) (hash.Hash, error) {
	c, err := p.HeadCommit(ctx)
	if err != nil {
		return hash.Hash{}, err
	}
	return c.Root, nil
}
