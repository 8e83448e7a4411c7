package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ventifact/ventifact/internal/blueprint"
	"github.com/ventifact/ventifact/internal/ingest"
	"github.com/ventifact/ventifact/internal/resultspec"
)

// rerunRow is one flake-relevant rerun paired with the immediately-previous
// run in its (blueprint_id, commit_id) partition.
type rerunRow struct {
	currSource, prevSource string
	currExtID, prevExtID   int64
	blueprintID            int64
	currSpec, prevSpec     []byte
}

// MarkFlakesSince executes C6 (spec.md §4.6). Grounded on the windowed,
// parameterized SQL style of internal/storage/correlation_views.go in the
// teacher: the analytical query (ROW_NUMBER partitioned by
// (blueprint_id, commit_id), ordered by timestamp with ext_id as the
// documented tie-break — spec.md §9's open question) runs outside any
// write transaction, and the resulting flake rows are inserted in one
// conflict-safe batch, matching the teacher's materialized-view-adjacent
// query shape expressed as plain database/sql.
func (s *Store) MarkFlakesSince(ctx context.Context, watermark time.Time) (int, error) {
	var (
		inserted    int
		rerunsTotal int
	)

	err := withTransientRetry(ctx, s.logger, "mark_flakes_since", func() error {
		reruns, err := s.findFlakeRelevantReruns(ctx, watermark)
		if err != nil {
			return err
		}

		rerunsTotal = len(reruns)

		if len(reruns) == 0 {
			inserted = 0
			return nil
		}

		memberCache := make(map[int64][]blueprint.ID)

		var flakes []ingest.TestFlake

		for _, rr := range reruns {
			members, err := s.membersForBlueprint(ctx, memberCache, rr.blueprintID)
			if err != nil {
				return err
			}

			prevResults, err := resultspec.Decode(rr.prevSpec, members)
			if err != nil {
				return fmt.Errorf("%w: %v", ingest.ErrCorruptPayload, err)
			}

			currResults, err := resultspec.Decode(rr.currSpec, members)
			if err != nil {
				return fmt.Errorf("%w: %v", ingest.ErrCorruptPayload, err)
			}

			if len(prevResults) != len(currResults) {
				return fmt.Errorf("%w: blueprint %d", ingest.ErrMemberMismatch, rr.blueprintID)
			}

			for i, member := range members {
				if prevResults[i].Passed == currResults[i].Passed {
					continue
				}

				// Attribute the flake to the failing-side run (spec.md §4.6 policy).
				failing := ingest.RunID{Source: ingest.Source(rr.currSource), ExtID: rr.currExtID}
				if currResults[i].Passed {
					failing = ingest.RunID{Source: ingest.Source(rr.prevSource), ExtID: rr.prevExtID}
				}

				flakes = append(flakes, ingest.TestFlake{
					TestRun:         failing,
					TestBlueprintID: int64(member),
				})
			}
		}

		if len(flakes) == 0 {
			inserted = 0
			return nil
		}

		n, err := s.insertFlakes(ctx, flakes)
		if err != nil {
			return err
		}

		inserted = n

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "flake detection pass complete",
		slog.Time("watermark", watermark),
		slog.Int("reruns_examined", rerunsTotal),
		slog.Int("flakes_inserted", inserted),
	)

	return inserted, nil
}

// findFlakeRelevantReruns ranks TestRun rows by timestamp within each
// (blueprint_id, commit_id) partition (ext_id ascending breaks ties — the
// secondary key spec.md §9 leaves to the implementer) and returns every
// rerun (rank > 1) whose timestamp is after watermark and whose
// result_spec differs from the immediately-previous run (NULL-safe via
// IS DISTINCT FROM, which is the sound byte-level prefilter spec.md §4.6
// describes).
func (s *Store) findFlakeRelevantReruns(ctx context.Context, watermark time.Time) ([]rerunRow, error) {
	const query = `
		WITH ranked AS (
			SELECT source, ext_id, blueprint_id, commit_id, timestamp, result_spec,
			       ROW_NUMBER() OVER (
			           PARTITION BY blueprint_id, commit_id
			           ORDER BY timestamp ASC, ext_id ASC
			       ) AS rn
			FROM test_runs
		)
		SELECT curr.source, curr.ext_id, curr.blueprint_id, curr.result_spec,
		       prev.source, prev.ext_id, prev.result_spec
		FROM ranked curr
		JOIN ranked prev
		  ON prev.blueprint_id = curr.blueprint_id
		 AND prev.commit_id = curr.commit_id
		 AND prev.rn = curr.rn - 1
		WHERE curr.rn > 1
		  AND curr.timestamp > $1
		  AND curr.result_spec IS DISTINCT FROM prev.result_spec`

	rows, err := s.conn.QueryContext(ctx, query, watermark)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var reruns []rerunRow

	for rows.Next() {
		var rr rerunRow

		if err := rows.Scan(
			&rr.currSource, &rr.currExtID, &rr.blueprintID, &rr.currSpec,
			&rr.prevSource, &rr.prevExtID, &rr.prevSpec,
		); err != nil {
			return nil, classifyDBError(err)
		}

		reruns = append(reruns, rr)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	return reruns, nil
}

// membersForBlueprint fetches (and caches within one MarkFlakesSince call)
// the sorted member list for a TestRunBlueprint.
func (s *Store) membersForBlueprint(ctx context.Context, cache map[int64][]blueprint.ID, blueprintID int64) ([]blueprint.ID, error) {
	if cached, ok := cache[blueprintID]; ok {
		return cached, nil
	}

	var raw []int64

	const query = `SELECT test_blueprint_ids FROM test_run_blueprints WHERE id = $1`
	if err := s.conn.QueryRowContext(ctx, query, blueprintID).Scan(pq.Array(&raw)); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: run_blueprint %d not found", ingest.ErrMemberMismatch, blueprintID)
		}

		return nil, classifyDBError(err)
	}

	members := make([]blueprint.ID, len(raw))
	for i, m := range raw {
		members[i] = blueprint.ID(m)
	}

	cache[blueprintID] = members

	return members, nil
}

// insertFlakes inserts all new flake rows in a single batch, ON CONFLICT
// (test_run_source, test_run_ext_id, test_blueprint_id) DO NOTHING —
// reprocessing the same window is idempotent under this composite key
// (spec.md §4.6's watermark policy).
func (s *Store) insertFlakes(ctx context.Context, flakes []ingest.TestFlake) (int, error) {
	var b strings.Builder

	b.WriteString("INSERT INTO test_flakes (test_run_source, test_run_ext_id, test_blueprint_id) VALUES ")

	args := make([]any, 0, len(flakes)*3)

	for i, f := range flakes {
		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, string(f.TestRun.Source), f.TestRun.ExtID, f.TestBlueprintID)
	}

	b.WriteString(" ON CONFLICT (test_run_source, test_run_ext_id, test_blueprint_id) DO NOTHING")

	result, err := s.conn.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, classifyDBError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classifyDBError(err)
	}

	return int(affected), nil
}
