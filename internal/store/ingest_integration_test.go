package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	vconfig "github.com/ventifact/ventifact/internal/config"
	"github.com/ventifact/ventifact/internal/ingest"
)

// newIntegrationStore stands up a real PostgreSQL container, runs every
// migration, and returns a Store wired to it. Grounded on
// internal/storage/lineage_store_integration_test.go's setup/teardown shape.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := vconfig.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	return NewStore(&Connection{DB: testDB.Connection})
}

func sampleRun(source ingest.Source, extID int64, commit byte, titles ...string) ingest.TestRun {
	results := make([]ingest.TestResult, len(titles))
	for i, title := range titles {
		results[i] = ingest.TestResult{Title: title, Passed: true}
	}

	return ingest.TestRun{
		ID:        ingest.RunID{Source: source, ExtID: extID},
		Timestamp: time.Now().UTC(),
		CommitID:  []byte{commit},
		Results:   results,
	}
}

func TestStore_InsertTestRun_IsIdempotent(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	run := sampleRun(ingest.SourceCircleCI, 1, 0x01, "test_a", "test_b")

	require.NoError(t, s.InsertTestRun(ctx, run))
	require.NoError(t, s.InsertTestRun(ctx, run))

	summaries, err := s.FetchRecentTestRuns(ctx, 10, nil)
	require.NoError(t, err)

	count := 0

	for _, sum := range summaries {
		if sum.ID == run.ID {
			count++
		}
	}

	assert.Equal(t, 1, count)
}

func TestStore_InsertTestRun_RejectsInvalidInput(t *testing.T) {
	s := newIntegrationStore(t)

	run := sampleRun(ingest.SourceCircleCI, 2, 0x02)
	run.Results = nil

	err := s.InsertTestRun(context.Background(), run)
	require.ErrorIs(t, err, ingest.ErrExternalInput)
}

func TestStore_InsertTestRun_SharesBlueprintAcrossRuns(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	run1 := sampleRun(ingest.SourceCircleCI, 10, 0x10, "shared_test")
	run2 := sampleRun(ingest.SourceAppveyor, 11, 0x11, "shared_test")

	require.NoError(t, s.InsertTestRun(ctx, run1))
	require.NoError(t, s.InsertTestRun(ctx, run2))

	var blueprintCount int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_blueprints WHERE title = 'shared_test'`).Scan(&blueprintCount)
	require.NoError(t, err)
	assert.Equal(t, 1, blueprintCount)
}

func TestStore_PurgeRunsBefore_DeletesExpiredRunsAndOrphanedBlueprints(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	run := sampleRun(ingest.SourceCircleCI, 20, 0x20, "expiring_test")
	run.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.InsertTestRun(ctx, run))

	deleted, err := s.PurgeRunsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	var blueprintCount int
	err = s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_blueprints WHERE title = 'expiring_test'`).Scan(&blueprintCount)
	require.NoError(t, err)
	assert.Equal(t, 0, blueprintCount)
}

func TestStore_PurgeRunsBefore_KeepsBlueprintStillReferenced(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	old := sampleRun(ingest.SourceCircleCI, 30, 0x30, "kept_test")
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)

	recent := sampleRun(ingest.SourceAppveyor, 31, 0x31, "kept_test")
	recent.Timestamp = time.Now().UTC()

	require.NoError(t, s.InsertTestRun(ctx, old))
	require.NoError(t, s.InsertTestRun(ctx, recent))

	_, err := s.PurgeRunsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)

	var blueprintCount int
	err = s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_blueprints WHERE title = 'kept_test'`).Scan(&blueprintCount)
	require.NoError(t, err)
	assert.Equal(t, 1, blueprintCount)
}

func TestStore_MarkFlakesSince_DetectsFlippedOutcome(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	commit := []byte{0x40}

	first := ingest.TestRun{
		ID:        ingest.RunID{Source: ingest.SourceCircleCI, ExtID: 40},
		Timestamp: time.Now().UTC().Add(-time.Hour),
		CommitID:  commit,
		Results:   []ingest.TestResult{{Title: "flaky_test", Passed: false}},
	}
	second := ingest.TestRun{
		ID:        ingest.RunID{Source: ingest.SourceCircleCI, ExtID: 41},
		Timestamp: time.Now().UTC(),
		CommitID:  commit,
		Results:   []ingest.TestResult{{Title: "flaky_test", Passed: true}},
	}

	require.NoError(t, s.InsertTestRun(ctx, first))
	require.NoError(t, s.InsertTestRun(ctx, second))

	inserted, err := s.MarkFlakesSince(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	flakes, err := s.FetchRecentTestFlakes(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, flakes, 1)
	assert.Equal(t, "flaky_test", flakes[0].Title)
	assert.Equal(t, int64(40), flakes[0].TestRun.ExtID)
}

func TestStore_MarkFlakesSince_IsIdempotent(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	commit := []byte{0x50}

	first := ingest.TestRun{
		ID:        ingest.RunID{Source: ingest.SourceCircleCI, ExtID: 50},
		Timestamp: time.Now().UTC().Add(-time.Hour),
		CommitID:  commit,
		Results:   []ingest.TestResult{{Title: "flappy_test", Passed: false}},
	}
	second := ingest.TestRun{
		ID:        ingest.RunID{Source: ingest.SourceCircleCI, ExtID: 51},
		Timestamp: time.Now().UTC(),
		CommitID:  commit,
		Results:   []ingest.TestResult{{Title: "flappy_test", Passed: true}},
	}

	require.NoError(t, s.InsertTestRun(ctx, first))
	require.NoError(t, s.InsertTestRun(ctx, second))

	watermark := time.Now().UTC().Add(-2 * time.Hour)

	first1, err := s.MarkFlakesSince(ctx, watermark)
	require.NoError(t, err)
	assert.Equal(t, 1, first1)

	second2, err := s.MarkFlakesSince(ctx, watermark)
	require.NoError(t, err)
	assert.Equal(t, 0, second2)
}

func TestStore_PRRetention_PurgeAndStreamAndCount(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	old := ingest.PR{Number: 100, MergedAt: time.Now().UTC().Add(-72 * time.Hour), Status: ingest.PRStatusSuccess}
	recent := ingest.PR{Number: 101, MergedAt: time.Now().UTC(), Status: ingest.PRStatusFailure}

	_, err := s.conn.ExecContext(ctx, `INSERT INTO prs (number, merged_at, status) VALUES ($1, $2, $3)`, old.Number, old.MergedAt, old.Status)
	require.NoError(t, err)
	_, err = s.conn.ExecContext(ctx, `INSERT INTO prs (number, merged_at, status) VALUES ($1, $2, $3)`, recent.Number, recent.MergedAt, recent.Status)
	require.NoError(t, err)

	counts, err := s.CountPRStatusesByDate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, counts)

	it, err := s.StreamPRsByMergedAtAsc(ctx)
	require.NoError(t, err)

	var seen []int
	for it.Next() {
		seen = append(seen, it.PR().Number)
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []int{100, 101}, seen)

	deleted, err := s.PurgePRsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestStore_HealthCheck(t *testing.T) {
	s := newIntegrationStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()))
}
