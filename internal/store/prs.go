package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/ventifact/ventifact/internal/ingest"
)

// PurgePRsBefore deletes PR rows with merged_at before cutoff (spec.md
// §4.10, the supplemented PR retention path). PR is not part of the dedup
// graph, so there are no cascading FK concerns (DESIGN.md).
func (s *Store) PurgePRsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM prs WHERE merged_at < $1`, cutoff)
	if err != nil {
		return 0, classifyDBError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classifyDBError(err)
	}

	s.logger.InfoContext(ctx, "pr retention pass complete", slog.Time("cutoff", cutoff), slog.Int64("deleted", affected))

	return int(affected), nil
}

// prIterator implements ingest.PRIterator over a *sql.Rows cursor.
type prIterator struct {
	rows *sql.Rows
	cur  ingest.PR
	err  error
}

func (it *prIterator) Next() bool {
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	it.err = it.rows.Scan(&it.cur.Number, &it.cur.MergedAt, &it.cur.Status)

	return it.err == nil
}

func (it *prIterator) PR() ingest.PR { return it.cur }
func (it *prIterator) Err() error    { return it.err }
func (it *prIterator) Close() error  { return it.rows.Close() }

// StreamPRsByMergedAtAsc yields PRs in ascending merge-time order (spec.md
// §6's stream_prs_by_merged_at_asc). The caller owns the returned iterator
// and must Close it (spec.md §9's streamed-cursor design contract).
func (s *Store) StreamPRsByMergedAtAsc(ctx context.Context) (ingest.PRIterator, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT number, merged_at, status FROM prs ORDER BY merged_at ASC`)
	if err != nil {
		return nil, classifyDBError(err)
	}

	return &prIterator{rows: rows}, nil
}

// CountPRStatusesByDate returns an aggregate bucket per UTC date (spec.md
// §6's count_pr_statuses_by_date): date (YYYY-MM-DD) -> status -> count.
func (s *Store) CountPRStatusesByDate(ctx context.Context) (map[string]map[ingest.PRStatus]int, error) {
	const query = `
		SELECT (merged_at AT TIME ZONE 'UTC')::date AS day, status, COUNT(*)
		FROM prs
		GROUP BY day, status`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[ingest.PRStatus]int)

	for rows.Next() {
		var (
			day    time.Time
			status ingest.PRStatus
			count  int
		)

		if err := rows.Scan(&day, &status, &count); err != nil {
			return nil, classifyDBError(err)
		}

		key := day.Format("2006-01-02")
		if out[key] == nil {
			out[key] = make(map[ingest.PRStatus]int)
		}

		out[key][status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}

	return out, nil
}
