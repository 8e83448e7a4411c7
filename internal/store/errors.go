package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ventifact/ventifact/internal/ingest"
)

const (
	// pqConnectionClassPrefix is the SQLSTATE class for connection
	// exceptions ("08xxx"). Grounded on isDatabaseConnectionError in the
	// teacher's internal/storage/lineage_store.go.
	pqConnectionClassPrefix = "08"

	// pqDeadlockDetected is the SQLSTATE for a deadlock; like connection
	// exceptions it is classified as transient and retried.
	pqDeadlockDetected = "40P01"

	// pqForeignKeyViolation and pqUniqueViolation are the two conflict
	// codes the protocol's own ON CONFLICT clauses are meant to absorb; if
	// they surface anyway it indicates an invariant bug rather than an
	// expected race. Grounded on the FK-violation check in the teacher's
	// internal/storage/test_results_store.go.
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// classifyDBError maps a raw database error to one of spec.md §7's error
// kinds, wrapping the sentinel with %w so callers keep errors.Is access to
// both the kind and the underlying driver error.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ingest.ErrCancelled, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case strings.HasPrefix(string(pqErr.Code), pqConnectionClassPrefix), string(pqErr.Code) == pqDeadlockDetected:
			return fmt.Errorf("%w: %v", ingest.ErrTransientDB, err)
		case string(pqErr.Code) == pqForeignKeyViolation, string(pqErr.Code) == pqUniqueViolation:
			return fmt.Errorf("%w: %v", ingest.ErrConstraintViolation, err)
		}
	}

	return err
}
