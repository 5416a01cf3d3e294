package ps

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nickyhof/TreeDB/core"
)

func TestBranch(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	createTable(t, p, charactersSchema())
	commitAll(t, p, "create")

	if err := p.Branch(ctx, "feature", nil); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	branches, err := p.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if !reflect.DeepEqual(branches, []string{"feature", "main"}) {
		t.Errorf("Unexpected branches %v", branches)
	}

	if err := p.Branch(ctx, "feature", nil); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
	for _, bad := range []string{"", "HEAD", "a b", "x..y", "-f", "topic.lock"} {
		if err := p.Branch(ctx, bad, nil); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument for %q, got %v", bad, err)
		}
	}
}

func TestBranchFromTransaction(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	createTable(t, p, charactersSchema())
	first := commitAll(t, p, "create")
	putRows(t, p, "characters", character(1, "Anna", "tragic"))
	commitAll(t, p, "Anna")

	if err := p.Branch(ctx, "old-state", &first); err != nil {
		t.Fatalf("Branch from transaction failed: %v", err)
	}
	if err := p.Checkout(ctx, "old-state"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if p.CurrentBranch() != "old-state" {
		t.Fatalf("Expected old-state, got %s", p.CurrentBranch())
	}
	if rows := workingRows(t, p, "characters"); len(rows) != 0 {
		t.Errorf("Expected no rows on old-state, got %v", rows)
	}
	latest, err := p.LatestTransaction(ctx)
	if err != nil {
		t.Fatalf("LatestTransaction failed: %v", err)
	}
	if latest.Id != first.Id {
		t.Errorf("Expected old-state at %s, got %s", first.Id, latest.Id)
	}
}

func TestBranchesKeepOwnWorkingSets(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	createTable(t, p, charactersSchema())
	commitAll(t, p, "create")

	if err := p.Branch(ctx, "feature", nil); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	if err := p.Checkout(ctx, "feature"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	putRows(t, p, "characters", character(1, "Kitty", "shy"))

	if err := p.Checkout(ctx, "main"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if rows := workingRows(t, p, "characters"); len(rows) != 0 {
		t.Errorf("Expected main untouched, got %v", rows)
	}

	// A session follows its own branch.
	s := p.Session()
	if err := s.Checkout(ctx, "feature"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if rows := workingRows(t, s, "characters"); len(rows) != 1 {
		t.Errorf("Expected the uncommitted row on feature, got %v", rows)
	}
	if p.CurrentBranch() != "main" {
		t.Errorf("Expected the original handle to stay on main, got %s", p.CurrentBranch())
	}
}

func TestCheckoutMissingBranch(t *testing.T) {
	p := newTestPersistence(t)
	if err := p.Checkout(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAndRenameBranch(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	if err := p.DeleteBranch(ctx, "main"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument deleting the current branch, got %v", err)
	}
	if err := p.Branch(ctx, "feature", nil); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	if err := p.RenameBranch(ctx, "feature", "topic"); err != nil {
		t.Fatalf("RenameBranch failed: %v", err)
	}
	if err := p.RenameBranch(ctx, "topic", "main"); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
	if err := p.DeleteBranch(ctx, "topic"); err != nil {
		t.Fatalf("DeleteBranch failed: %v", err)
	}
	if err := p.DeleteBranch(ctx, "topic"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := p.RenameBranch(ctx, "main", "trunk"); err != nil {
		t.Fatalf("RenameBranch of current branch failed: %v", err)
	}
	if p.CurrentBranch() != "trunk" {
		t.Errorf("Expected handle to follow the rename, got %s", p.CurrentBranch())
	}
	branches, _ := p.ListBranches(ctx)
	if !reflect.DeepEqual(branches, []string{"trunk"}) {
		t.Errorf("Unexpected branches %v", branches)
	}
}
