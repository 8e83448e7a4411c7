package ingest

import (
	"context"
	"time"
)

// Store is the storage contract the core engine must satisfy. Defined here
// (in the domain package) rather than in the storage package, following the
// teacher's dependency-inversion split (internal/ingestion.Store /
// internal/storage.LineageStore): domain packages declare what they need,
// storage packages implement it, and callers depend only on this interface.
//
// Implemented by internal/store.Store.
type Store interface {
	// InsertTestRun executes C4 (spec.md §4.4): derives blueprint ids,
	// upserts TestBlueprint and TestRunBlueprint rows, encodes the result
	// spec, and inserts the TestRun row, all in one transaction. Idempotent
	// on (source, ext_id).
	InsertTestRun(ctx context.Context, run TestRun) error

	// PurgeRunsBefore executes C5 (spec.md §4.5): deletes every TestRun
	// (and cascading TestFlake) with timestamp before cutoff, then collects
	// and deletes any TestRunBlueprint/TestBlueprint rows left orphaned.
	// Returns the number of TestRun rows deleted.
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// MarkFlakesSince executes C6 (spec.md §4.6): finds reruns whose
	// result_spec changed since the previous run in the same
	// (blueprint_id, commit_id) partition, and inserts one TestFlake per
	// flipped member, attributed to the failing-side run. Returns the
	// number of new flake rows inserted.
	MarkFlakesSince(ctx context.Context, watermark time.Time) (int, error)

	// PurgePRsBefore deletes PR rows with merged_at before cutoff (§4.10).
	PurgePRsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// StreamPRsByMergedAtAsc yields PRs in ascending merge-time order
	// (spec.md §6's stream_prs_by_merged_at_asc).
	StreamPRsByMergedAtAsc(ctx context.Context) (PRIterator, error)

	// CountPRStatusesByDate returns an aggregate bucket per UTC date
	// (spec.md §6's count_pr_statuses_by_date): date -> status -> count.
	CountPRStatusesByDate(ctx context.Context) (map[string]map[PRStatus]int, error)

	// FetchRecentTestRuns returns up to count runs, descending by
	// timestamp, optionally only those after since (spec.md §6).
	FetchRecentTestRuns(ctx context.Context, count int, since *time.Time) ([]TestRunSummary, error)

	// FetchRecentTestFlakes returns up to count flakes, descending by
	// timestamp, joined to test_blueprints for title (spec.md §6).
	FetchRecentTestFlakes(ctx context.Context, count int, since *time.Time) ([]TestFlakeSummary, error)

	// HealthCheck verifies the storage backend is reachable.
	HealthCheck(ctx context.Context) error
}

// PRIterator is a cursor over streamed PR rows (spec.md §9's "streamed
// orphan scan" design contract applies equally here: rows are produced
// until either exhausted or the consumer stops, and the consumer must
// release the underlying cursor via Close).
type PRIterator interface {
	// Next advances the cursor. Returns false when exhausted or on error;
	// callers must check Err after Next returns false.
	Next() bool
	PR() PR
	Err() error
	Close() error
}
