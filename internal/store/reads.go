package store

import (
	"context"
	"time"

	"github.com/ventifact/ventifact/internal/ingest"
)

// FetchRecentTestRuns returns up to count runs, descending by timestamp,
// optionally only those after since (spec.md §6). succeeded is derived as
// (result_spec IS NULL), matching the external contract exactly.
func (s *Store) FetchRecentTestRuns(ctx context.Context, count int, since *time.Time) ([]ingest.TestRunSummary, error) {
	const query = `
		SELECT source, ext_id, timestamp, commit_id, (result_spec IS NULL) AS succeeded
		FROM test_runs
		WHERE ($1::timestamptz IS NULL OR timestamp > $1)
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := s.conn.QueryContext(ctx, query, since, count)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []ingest.TestRunSummary

	for rows.Next() {
		var (
			source    string
			extID     int64
			timestamp time.Time
			commitID  []byte
			succeeded bool
		)

		if err := rows.Scan(&source, &extID, &timestamp, &commitID, &succeeded); err != nil {
			return nil, classifyDBError(err)
		}

		out = append(out, ingest.TestRunSummary{
			ID:        ingest.RunID{Source: ingest.Source(source), ExtID: extID},
			Timestamp: timestamp,
			CommitID:  commitID,
			Succeeded: succeeded,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	return out, nil
}

// FetchRecentTestFlakes returns up to count flakes, descending by
// timestamp, joined to test_blueprints for title and to test_runs for
// timestamp (spec.md §6).
func (s *Store) FetchRecentTestFlakes(ctx context.Context, count int, since *time.Time) ([]ingest.TestFlakeSummary, error) {
	const query = `
		SELECT f.test_run_source, f.test_run_ext_id, b.title, tr.timestamp
		FROM test_flakes f
		JOIN test_blueprints b ON b.id = f.test_blueprint_id
		JOIN test_runs tr ON tr.source = f.test_run_source AND tr.ext_id = f.test_run_ext_id
		WHERE ($1::timestamptz IS NULL OR tr.timestamp > $1)
		ORDER BY tr.timestamp DESC
		LIMIT $2`

	rows, err := s.conn.QueryContext(ctx, query, since, count)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []ingest.TestFlakeSummary

	for rows.Next() {
		var (
			source    string
			extID     int64
			title     string
			timestamp time.Time
		)

		if err := rows.Scan(&source, &extID, &title, &timestamp); err != nil {
			return nil, classifyDBError(err)
		}

		out = append(out, ingest.TestFlakeSummary{
			TestRun:   ingest.RunID{Source: ingest.Source(source), ExtID: extID},
			Title:     title,
			Timestamp: timestamp,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	return out, nil
}
