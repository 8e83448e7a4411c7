package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestRun() TestRun {
	return TestRun{
		ID:        RunID{Source: SourceCircleCI, ExtID: 1},
		Timestamp: time.Now(),
		CommitID:  []byte{0xde, 0xad, 0xbe, 0xef},
		Results:   []TestResult{{Title: "boot", Passed: true}},
	}
}

func TestTestRun_Validate_AcceptsWellFormedRun(t *testing.T) {
	require.NoError(t, validTestRun().Validate())
}

func TestTestRun_Validate_RejectsUnknownSource(t *testing.T) {
	run := validTestRun()
	run.ID.Source = "jenkins"

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsNonPositiveExtID(t *testing.T) {
	run := validTestRun()
	run.ID.ExtID = 0

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsEmptyResults(t *testing.T) {
	run := validTestRun()
	run.Results = nil

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsEmptyResultTitle(t *testing.T) {
	run := validTestRun()
	run.Results = []TestResult{{Title: "", Passed: true}}

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsOverlongResultTitle(t *testing.T) {
	run := validTestRun()
	run.Results = []TestResult{{Title: strings.Repeat("a", maxTitleLen+1), Passed: true}}

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsZeroTimestamp(t *testing.T) {
	run := validTestRun()
	run.Timestamp = time.Time{}

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func TestTestRun_Validate_RejectsEmptyCommitID(t *testing.T) {
	run := validTestRun()
	run.CommitID = nil

	require.ErrorIs(t, run.Validate(), ErrExternalInput)
}

func validPR() PR {
	return PR{Number: 42, MergedAt: time.Now(), Status: PRStatusSuccess}
}

func TestPR_Validate_AcceptsWellFormedPR(t *testing.T) {
	require.NoError(t, validPR().Validate())
}

func TestPR_Validate_RejectsNonPositiveNumber(t *testing.T) {
	pr := validPR()
	pr.Number = 0

	require.ErrorIs(t, pr.Validate(), ErrExternalInput)
}

func TestPR_Validate_RejectsZeroMergedAt(t *testing.T) {
	pr := validPR()
	pr.MergedAt = time.Time{}

	require.ErrorIs(t, pr.Validate(), ErrExternalInput)
}

func TestPR_Validate_RejectsUnknownStatus(t *testing.T) {
	pr := validPR()
	pr.Status = "rejected"

	require.ErrorIs(t, pr.Validate(), ErrExternalInput)
}

func TestSource_IsValid(t *testing.T) {
	assert.True(t, SourceAppveyor.IsValid())
	assert.True(t, SourceCircleCI.IsValid())
	assert.False(t, Source("jenkins").IsValid())
	assert.False(t, Source("").IsValid())
}
