package ps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dolthub/fslock"
	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/uuid"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/hash"
)

const (
	stateFile = "repo_state.json"
	lockFile  = "LOCK"
)

// BranchState is the commit a branch points at plus its working set.
type BranchState struct {
	Commit  hash.Hash `json:"commit"`
	Staged  hash.Hash `json:"staged"`
	Working hash.Hash `json:"working"`
}

// RepoState is the mutable part of a repository. Everything else is
// immutable chunks.
type RepoState struct {
	ID       string                 `json:"id"`
	Head     string                 `json:"head"`
	Branches map[string]BranchState `json:"branches"`

	// GCGeneration counts finished garbage collections.
	GCGeneration uint64 `json:"gc_generation,omitempty"`
}

func newRepoState(branch string, commit, root hash.Hash) *RepoState {
	return &RepoState{
		ID:   uuid.NewString(),
		Head: branch,
		Branches: map[string]BranchState{
			branch: {Commit: commit, Staged: root, Working: root},
		},
	}
}

func (rs *RepoState) clone() *RepoState {
	out := &RepoState{
		ID:           rs.ID,
		Head:         rs.Head,
		Branches:     make(map[string]BranchState, len(rs.Branches)),
		GCGeneration: rs.GCGeneration,
	}
	for name, bs := range rs.Branches {
		out.Branches[name] = bs
	}
	return out
}

func (rs *RepoState) branch(name string) (BranchState, error) {
	bs, ok := rs.Branches[name]
	if !ok {
		return BranchState{}, fmt.Errorf("branch %s: %w", name, core.ErrNotFound)
	}
	return bs, nil
}

// StateStore holds the RepoState. Update is an atomic read-modify-write: fn
// sees the latest state and its changes are published only if it returns nil.
type StateStore interface {
	Load(ctx context.Context) (*RepoState, error)
	Update(ctx context.Context, fn func(*RepoState) error) error
}

type memoryStateStore struct {
	mu    sync.Mutex
	state *RepoState
}

func newMemoryStateStore(rs *RepoState) *memoryStateStore {
	return &memoryStateStore{state: rs.clone()}
}

func (s *memoryStateStore) Load(_ context.Context) (*RepoState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), nil
}

func (s *memoryStateStore) Update(_ context.Context, fn func(*RepoState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// fileStateStore keeps the state as JSON in the metadata directory. Writers
// in this process serialize on mu; writers in other processes on an fslock.
type fileStateStore struct {
	fs   billy.Filesystem
	lock *fslock.Lock
	mu   sync.Mutex
}

func newFileStateStore(fs billy.Filesystem) *fileStateStore {
	return &fileStateStore{
		fs:   fs,
		lock: fslock.New(fs.Join(fs.Root(), lockFile)),
	}
}

func (s *fileStateStore) Load(_ context.Context) (*RepoState, error) {
	data, err := util.ReadFile(s.fs, stateFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("repository state: %w", core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read repository state: %w", err)
	}
	var rs RepoState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: repository state: %v", core.ErrCorruption, err)
	}
	if rs.Branches == nil {
		rs.Branches = map[string]BranchState{}
	}
	return &rs, nil
}

func (s *fileStateStore) Update(ctx context.Context, fn func(*RepoState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Unlock()

	rs, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(rs); err != nil {
		return err
	}
	return s.save(rs)
}

func (s *fileStateStore) acquire(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		err := s.lock.TryLock()
		if err == nil || errors.Is(err, fslock.ErrLocked) {
			return err
		}
		return backoff.Permanent(fmt.Errorf("failed to lock repository state: %w", err))
	}, backoff.WithContext(b, ctx))
}

// save writes the state to a temporary file and renames it into place, so
// readers see either the old or the new state.
func (s *fileStateStore) save(rs *RepoState) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	tmp := stateFile + ".tmp-" + uuid.NewString()
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write repository state: %w", err)
	}
	if err := s.fs.Rename(tmp, stateFile); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to publish repository state: %w", err)
	}
	return nil
}
