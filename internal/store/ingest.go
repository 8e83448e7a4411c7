package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/ventifact/ventifact/internal/blueprint"
	"github.com/ventifact/ventifact/internal/ingest"
	"github.com/ventifact/ventifact/internal/resultspec"
)

var _ ingest.Store = (*Store)(nil)

// Store implements ingest.Store against PostgreSQL. Grounded on the
// teacher's internal/storage.LineageStore: a thin wrapper around a pooled
// *Connection plus a structured logger, with one method per public
// operation and private helpers for each transaction step.
type Store struct {
	conn   *Connection
	logger *slog.Logger
}

// Option configures a Store at construction time (the teacher's
// LineageStoreOption functional-options pattern, internal/storage/lineage_store.go).
type Option func(*Store)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore constructs a Store over an open connection pool.
func NewStore(conn *Connection, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// HealthCheck verifies the storage backend is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// InsertTestRun executes C4 (spec.md §4.4) in a single transaction: derive
// blueprint ids, upsert TestBlueprint and TestRunBlueprint rows, encode the
// result spec, insert the TestRun row. Idempotent on (source, ext_id).
func (s *Store) InsertTestRun(ctx context.Context, run ingest.TestRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	blueprints := make([]blueprint.ID, len(run.Results))
	for i, r := range run.Results {
		blueprints[i] = blueprint.TitleID(r.Title)
	}

	runBlueprintID, sortedMembers := blueprint.SetID(blueprints)

	payload := encodeResultSpec(run.Results, blueprints)

	err := withTransientRetry(ctx, s.logger, "insert_test_run", func() error {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return classifyDBError(err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := upsertTestBlueprints(ctx, tx, run.Results, blueprints); err != nil {
			return err
		}

		if err := upsertTestRunBlueprint(ctx, tx, runBlueprintID, sortedMembers); err != nil {
			return err
		}

		if err := insertTestRun(ctx, tx, run, runBlueprintID, payload); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return classifyDBError(err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "test run ingested",
		slog.String("source", string(run.ID.Source)),
		slog.Int64("ext_id", run.ID.ExtID),
		slog.Int("result_count", len(run.Results)),
		slog.Int64("run_blueprint_id", int64(runBlueprintID)),
	)

	return nil
}

// encodeResultSpec zips the title-ordered results with their derived
// blueprint ids and hands them to the C2 codec.
func encodeResultSpec(results []ingest.TestResult, ids []blueprint.ID) []byte {
	encoded := make([]resultspec.Result, len(results))
	for i, r := range results {
		encoded[i] = resultspec.Result{ID: ids[i], Passed: r.Passed}
	}

	return resultspec.Encode(encoded)
}

// upsertTestBlueprints inserts the {id, title} rows for every result in the
// run, ON CONFLICT (id) DO NOTHING — blueprints are immutable once created
// (spec.md §3), so a conflict just means another run already established
// this title's digest.
func upsertTestBlueprints(ctx context.Context, tx *sql.Tx, results []ingest.TestResult, ids []blueprint.ID) error {
	if len(results) == 0 {
		return nil
	}

	var b strings.Builder

	b.WriteString("INSERT INTO test_blueprints (id, title) VALUES ")

	args := make([]any, 0, len(results)*2)

	for i, r := range results {
		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "($%d, $%d)", i*2+1, i*2+2)
		args = append(args, int64(ids[i]), r.Title)
	}

	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return classifyDBError(err)
	}

	return nil
}

// upsertTestRunBlueprint inserts the test-set "shape" row, ON CONFLICT (id)
// DO NOTHING, storing members in the already-sorted canonical order.
func upsertTestRunBlueprint(ctx context.Context, tx *sql.Tx, id blueprint.ID, sortedMembers []blueprint.ID) error {
	memberInts := make([]int64, len(sortedMembers))
	for i, m := range sortedMembers {
		memberInts[i] = int64(m)
	}

	const query = `
		INSERT INTO test_run_blueprints (id, test_blueprint_ids)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query, int64(id), pq.Array(memberInts)); err != nil {
		return classifyDBError(err)
	}

	return nil
}

// insertTestRun inserts the TestRun row, ON CONFLICT (source, ext_id) DO
// NOTHING, making repeated ingest of the same run a no-op (spec.md §8
// property 4, ingest idempotence).
func insertTestRun(ctx context.Context, tx *sql.Tx, run ingest.TestRun, blueprintID blueprint.ID, payload []byte) error {
	var branch sql.NullString
	if run.Branch != "" {
		branch = sql.NullString{String: run.Branch, Valid: true}
	}

	const query = `
		INSERT INTO test_runs (source, ext_id, blueprint_id, timestamp, branch, commit_id, result_spec)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, ext_id) DO NOTHING`

	_, err := tx.ExecContext(ctx, query,
		string(run.ID.Source), run.ID.ExtID, int64(blueprintID), run.Timestamp, branch, run.CommitID, payload,
	)
	if err != nil {
		return classifyDBError(err)
	}

	return nil
}
