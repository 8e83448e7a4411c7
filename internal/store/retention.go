package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// candidateBlueprint is a TestRunBlueprint that, at candidate-collection
// time, has no TestRun referencing it with a timestamp at or after cutoff —
// i.e. it will become orphaned once expired runs are deleted.
type candidateBlueprint struct {
	id      int64
	members []int64
}

// PurgeRunsBefore executes C5 (spec.md §4.5) in a single transaction.
//
// Grounded on cleanupExpiredIdempotencyKeys in the teacher's
// internal/storage/lineage_store.go for the batch-delete/structured-logging
// shape, repurposed to the candidate-collect -> cascade-delete ->
// stream-and-subtract -> delete-orphans algorithm the spec describes. The
// open question in spec.md §5/§9 (serializable vs. FOR UPDATE) is resolved
// here as FOR UPDATE: each candidate's parent row is locked before the
// cascade deletes run, so a concurrent insert_test_run referencing that
// blueprint blocks on the implicit FK lock until this transaction commits,
// rather than racing to completion (see DESIGN.md).
func (s *Store) PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		deletedRuns           int
		candidateCount        int
		orphanBlueprintsCount int
	)

	err := withTransientRetry(ctx, s.logger, "purge_runs_before", func() error {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return classifyDBError(err)
		}
		defer func() { _ = tx.Rollback() }()

		candidates, err := collectAndLockCandidates(ctx, tx, cutoff)
		if err != nil {
			return err
		}

		if err := cascadeDeleteFlakes(ctx, tx, cutoff); err != nil {
			return err
		}

		deleted, err := deleteExpiredRuns(ctx, tx, cutoff)
		if err != nil {
			return err
		}

		orphanTestBlueprints, err := findOrphanTestBlueprints(ctx, tx, candidates)
		if err != nil {
			return err
		}

		if err := deleteTestBlueprints(ctx, tx, orphanTestBlueprints); err != nil {
			return err
		}

		if err := deleteTestRunBlueprints(ctx, tx, candidates); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return classifyDBError(err)
		}

		deletedRuns = deleted
		candidateCount = len(candidates)
		orphanBlueprintsCount = len(orphanTestBlueprints)

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "retention pass complete",
		slog.Time("cutoff", cutoff),
		slog.Int("runs_deleted", deletedRuns),
		slog.Int("run_blueprints_deleted", candidateCount),
		slog.Int("test_blueprints_deleted", orphanBlueprintsCount),
	)

	return deletedRuns, nil
}

// collectAndLockCandidates finds TestRunBlueprint ids whose every
// referencing TestRun has timestamp < cutoff, locks each candidate's row
// with SELECT ... FOR UPDATE, then re-checks the same condition under that
// lock — closing the window in which a concurrent insert_test_run could
// reference the candidate between collection and the final delete.
func collectAndLockCandidates(ctx context.Context, tx *sql.Tx, cutoff time.Time) ([]candidateBlueprint, error) {
	const candidateQuery = `
		SELECT trb.id, trb.test_blueprint_ids
		FROM test_run_blueprints trb
		WHERE EXISTS (SELECT 1 FROM test_runs tr WHERE tr.blueprint_id = trb.id)
		  AND NOT EXISTS (
		    SELECT 1 FROM test_runs tr
		    WHERE tr.blueprint_id = trb.id AND tr.timestamp >= $1
		  )`

	rows, err := tx.QueryContext(ctx, candidateQuery, cutoff)
	if err != nil {
		return nil, classifyDBError(err)
	}

	var initial []candidateBlueprint

	for rows.Next() {
		var (
			id      int64
			members []int64
		)

		if err := rows.Scan(&id, pq.Array(&members)); err != nil {
			_ = rows.Close()

			return nil, classifyDBError(err)
		}

		initial = append(initial, candidateBlueprint{id: id, members: members})
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	if err := rows.Close(); err != nil {
		return nil, classifyDBError(err)
	}

	confirmed := make([]candidateBlueprint, 0, len(initial))

	for _, c := range initial {
		stillOrphaned, err := lockAndRecheckOrphan(ctx, tx, c.id, cutoff)
		if err != nil {
			return nil, err
		}

		if stillOrphaned {
			confirmed = append(confirmed, c)
		}
	}

	return confirmed, nil
}

// lockAndRecheckOrphan locks the candidate's test_run_blueprints row and
// re-verifies no live-window TestRun references it. The lock is held until
// the enclosing transaction commits or rolls back.
func lockAndRecheckOrphan(ctx context.Context, tx *sql.Tx, id int64, cutoff time.Time) (bool, error) {
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM test_run_blueprints WHERE id = $1 FOR UPDATE`, id); err != nil {
		return false, classifyDBError(err)
	}

	var stillReferenced bool

	const recheckQuery = `SELECT EXISTS (SELECT 1 FROM test_runs WHERE blueprint_id = $1 AND timestamp >= $2)`
	if err := tx.QueryRowContext(ctx, recheckQuery, id, cutoff).Scan(&stillReferenced); err != nil {
		return false, classifyDBError(err)
	}

	return !stillReferenced, nil
}

// cascadeDeleteFlakes deletes every TestFlake whose referenced TestRun has
// timestamp < cutoff (must precede deleteExpiredRuns: test_flakes FKs into
// test_runs).
func cascadeDeleteFlakes(ctx context.Context, tx *sql.Tx, cutoff time.Time) error {
	const query = `
		DELETE FROM test_flakes f
		USING test_runs tr
		WHERE f.test_run_source = tr.source
		  AND f.test_run_ext_id = tr.ext_id
		  AND tr.timestamp < $1`

	if _, err := tx.ExecContext(ctx, query, cutoff); err != nil {
		return classifyDBError(err)
	}

	return nil
}

// deleteExpiredRuns deletes every TestRun with timestamp < cutoff and
// returns the count deleted.
func deleteExpiredRuns(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int, error) {
	result, err := tx.ExecContext(ctx, `DELETE FROM test_runs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, classifyDBError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classifyDBError(err)
	}

	return int(affected), nil
}

// findOrphanTestBlueprints computes S, the union of members of every
// confirmed-orphan TestRunBlueprint, then streams every surviving
// TestRunBlueprint and subtracts its members from S, stopping early once S
// is empty (spec.md §4.5 step 4 / §9's streamed-orphan-scan design note).
func findOrphanTestBlueprints(ctx context.Context, tx *sql.Tx, candidates []candidateBlueprint) ([]int64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	remaining := make(map[int64]struct{}, len(candidates)*8)

	candidateIDs := make([]int64, len(candidates))

	for i, c := range candidates {
		candidateIDs[i] = c.id

		for _, m := range c.members {
			remaining[m] = struct{}{}
		}
	}

	const surviveQuery = `
		SELECT test_blueprint_ids FROM test_run_blueprints
		WHERE id != ALL($1)`

	rows, err := tx.QueryContext(ctx, surviveQuery, pq.Array(candidateIDs))
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	for len(remaining) > 0 && rows.Next() {
		var members []int64

		if err := rows.Scan(pq.Array(&members)); err != nil {
			return nil, classifyDBError(err)
		}

		for _, m := range members {
			delete(remaining, m)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	orphans := make([]int64, 0, len(remaining))
	for id := range remaining {
		orphans = append(orphans, id)
	}

	return orphans, nil
}

// deleteTestBlueprints deletes TestBlueprint rows by id. Must run before
// deleteTestRunBlueprints would be irrelevant here (test_blueprints has no
// FK dependency on test_run_blueprints), but runs before the parent
// TestRunBlueprint delete for symmetry with the spec's stated ordering.
func deleteTestBlueprints(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_blueprints WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return classifyDBError(err)
	}

	return nil
}

// deleteTestRunBlueprints deletes the confirmed-orphan TestRunBlueprint
// rows. Runs last: test_runs and test_flakes FKs into this table must
// already be gone (enforced by steps 2-3 plus the FOR UPDATE lock closing
// the concurrent-insert race).
func deleteTestRunBlueprints(ctx context.Context, tx *sql.Tx, candidates []candidateBlueprint) error {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_run_blueprints WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return classifyDBError(err)
	}

	return nil
}
