package ps

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/datas"
	"github.com/nickyhof/TreeDB/hash"
)

type Transaction struct {
	Id      string
	When    time.Time
	Author  string // "Name <email>" format
	Message string
	Parents []string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

func (transaction Transaction) Hash() (hash.Hash, error) {
	return hash.Parse(transaction.Id)
}

func transactionOf(c *datas.Commit) Transaction {
	parents := make([]string, len(c.Parents))
	for i, ph := range c.Parents {
		parents[i] = ph.String()
	}
	author := ""
	if c.Meta.Name != "" || c.Meta.Email != "" {
		author = c.Meta.Author().String()
	}
	return Transaction{
		Id:      c.Hash.String(),
		When:    c.Meta.Timestamp,
		Author:  author,
		Message: c.Meta.Message,
		Parents: parents,
	}
}

type CommitOptions struct {
	AllowEmpty bool
	// Date overrides the commit time.
	Date time.Time
}

// Commit records the staged root of the bound branch.
func (p *Persistence) Commit(ctx context.Context, message string, identity core.Identity, opts CommitOptions) (Transaction, error) {
	ws, err := p.WorkingSet(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return p.CommitWorkingSet(ctx, ws, message, identity, opts)
}

// CommitWorkingSet records ws.Staged on top of ws.Head and advances the branch
// only if it still points at ws.Head; otherwise it fails with
// core.ErrConcurrentModification and the branch is untouched. The working
// root is kept, so unstaged changes stay modified.
func (p *Persistence) CommitWorkingSet(ctx context.Context, ws WorkingSet, message string, identity core.Identity, opts CommitOptions) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}
	if ws.Staged == ws.HeadRoot && !opts.AllowEmpty {
		return Transaction{}, fmt.Errorf("no changes added to commit on %s: %w", ws.Branch, core.ErrNothingToCommit)
	}

	c, err := p.commits.WriteCommit(ctx, ws.Staged, []hash.Hash{ws.Head}, datas.CommitMeta{
		Name:      identity.Name,
		Email:     identity.Email,
		Timestamp: opts.Date,
		Message:   message,
	}, datas.CommitOptions{AllowEmpty: opts.AllowEmpty})
	if err != nil {
		return Transaction{}, err
	}

	if err := p.advanceBranch(ctx, ws, c.Hash, nil); err != nil {
		return Transaction{}, err
	}
	p.log.WithFields(logrus.Fields{
		"branch": ws.Branch,
		"commit": c.Hash.String(),
		"parent": ws.Head.Short(),
	}).Info("committed")
	return transactionOf(c), nil
}

// advanceBranch moves ws.Branch from ws.Head to next in one compare-and-swap.
// When roots is non-nil the staged and working roots are replaced too. If a
// GC finished since ws was read, next and its root must still be stored.
func (p *Persistence) advanceBranch(ctx context.Context, ws WorkingSet, next hash.Hash, roots *hash.Hash) error {
	return p.state.Update(ctx, func(rs *RepoState) error {
		bs, err := rs.branch(ws.Branch)
		if err != nil {
			return err
		}
		if bs.Commit != ws.Head {
			return fmt.Errorf("branch %s moved from %s to %s: %w",
				ws.Branch, ws.Head.Short(), bs.Commit.Short(), core.ErrConcurrentModification)
		}
		if rs.GCGeneration != ws.gcGeneration {
			if ok, err := p.cs.Has(ctx, next); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("garbage collected while publishing %s: %w", next.Short(), core.ErrNotFound)
			}
			c, err := p.commits.ReadCommit(ctx, next)
			if err != nil {
				return fmt.Errorf("garbage collected while publishing %s: %w", next.Short(), err)
			}
			if err := p.verifySince(ctx, rs, ws.gcGeneration, c.Root); err != nil {
				return err
			}
		}
		bs.Commit = next
		if roots != nil {
			bs.Staged = *roots
			bs.Working = *roots
		}
		rs.Branches[ws.Branch] = bs
		return nil
	})
}

// Log returns up to n transactions reachable from the bound branch, newest
// first. n <= 0 means all.
func (p *Persistence) Log(ctx context.Context, n int) ([]Transaction, error) {
	_, bs, err := p.branchState(ctx)
	if err != nil {
		return nil, err
	}
	return p.logFrom(ctx, bs.Commit, n, time.Time{})
}

func (p *Persistence) logFrom(ctx context.Context, from hash.Hash, n int, since time.Time) ([]Transaction, error) {
	var out []Transaction
	for c, err := range p.commits.Log(ctx, from) {
		if err != nil {
			return nil, err
		}
		if !since.IsZero() && c.Meta.Timestamp.Before(since) {
			break
		}
		out = append(out, transactionOf(c))
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (p *Persistence) LatestTransaction(ctx context.Context) (Transaction, error) {
	c, err := p.HeadCommit(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return transactionOf(c), nil
}

// TransactionsSince returns the transactions of the bound branch made at or
// after asof.
func (p *Persistence) TransactionsSince(ctx context.Context, asof time.Time) ([]Transaction, error) {
	_, bs, err := p.branchState(ctx)
	if err != nil {
		return nil, err
	}
	return p.logFrom(ctx, bs.Commit, 0, asof)
}

// TransactionsFrom returns the history starting at the given commit.
func (p *Persistence) TransactionsFrom(ctx context.Context, ref string) ([]Transaction, error) {
	h, err := p.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.logFrom(ctx, h, 0, time.Time{})
}

// ResolveRef turns a reference into a commit hash. It accepts HEAD, HEAD~n,
// branch names and commit hashes.
func (p *Persistence) ResolveRef(ctx context.Context, ref string) (hash.Hash, error) {
	if err := p.ensureInitialized(); err != nil {
		return hash.Hash{}, err
	}
	base, back := ref, 0
	if i := strings.LastIndex(ref, "~"); i > 0 {
		n, err := strconv.Atoi(ref[i+1:])
		if err != nil || n < 0 {
			return hash.Hash{}, fmt.Errorf("%w: bad reference %q", core.ErrInvalidArgument, ref)
		}
		base, back = ref[:i], n
	}

	var h hash.Hash
	rs, err := p.state.Load(ctx)
	if err != nil {
		return hash.Hash{}, err
	}
	if strings.EqualFold(base, "HEAD") {
		bs, err := rs.branch(p.CurrentBranch())
		if err != nil {
			return hash.Hash{}, err
		}
		h = bs.Commit
	} else if bs, ok := rs.Branches[base]; ok {
		h = bs.Commit
	} else if parsed, ok := hash.MaybeParse(base); ok {
		h = parsed
	} else {
		return hash.Hash{}, fmt.Errorf("reference %q: %w", ref, core.ErrNotFound)
	}

	for i := 0; i < back; i++ {
		c, err := p.commits.ReadCommit(ctx, h)
		if err != nil {
			return hash.Hash{}, err
		}
		if len(c.Parents) == 0 {
			return hash.Hash{}, fmt.Errorf("reference %q goes past the first commit: %w", ref, core.ErrNotFound)
		}
		h = c.Parents[0]
	}
	if _, err := p.commits.ReadCommit(ctx, h); err != nil {
		return hash.Hash{}, err
	}
	return h, nil
}
