package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrSchemaViolation        = errors.New("schema violation")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrEmptyCommit            = errors.New("empty commit")
	ErrNothingToCommit        = errors.New("nothing to commit")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrCorruption             = errors.New("corruption")
	ErrMergeConflict          = errors.New("merge conflict")
	ErrInvalidArgument        = errors.New("invalid argument")

	ErrNoSuchTable  = fmt.Errorf("no such table: %w", ErrNotFound)
	ErrNoSuchColumn = fmt.Errorf("no such column: %w", ErrNotFound)
)

// Codes are ordered most specific first.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNoSuchTable, "no_such_table"},
	{ErrNoSuchColumn, "no_such_column"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrSchemaViolation, "schema_violation"},
	{ErrConstraintViolation, "constraint_violation"},
	{ErrEmptyCommit, "empty_commit"},
	{ErrNothingToCommit, "nothing_to_commit"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrCorruption, "corruption"},
	{ErrMergeConflict, "merge_conflict"},
	{ErrInvalidArgument, "invalid_argument"},
}

// ErrorCode returns the stable category code for err, "internal" for
// uncategorized errors and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// IsRetryable reports whether the caller may rebase and retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
