package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	uniqueViolation     pq.ErrorCode = "23505"
	foreignKeyViolation pq.ErrorCode = "23503"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("unique constraint violation")
	ErrReferenceNotFound = errors.New("referenced record not found")
	ErrCursorNotFound    = errors.New("cursor not found")
)

// classifyError maps driver errors onto the package's sentinel errors so
// callers never have to inspect *pq.Error themselves.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", ErrReferenceNotFound, pqErr.Constraint)
		}
	}

	return err
}
