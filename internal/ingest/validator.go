package ingest

import (
	"fmt"
)

const maxTitleLen = 750

// Validate checks an inbound TestRun against spec.md §7's ExternalInput
// contract: malformed input to insert_test_run must be rejected before a
// transaction is opened, not discovered mid-transaction. Grounded on the
// teacher's internal/ingestion/models.go TestResult.Validate shape (a
// handful of field-level checks, no I/O).
func (r TestRun) Validate() error {
	if !r.ID.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrExternalInput, r.ID.Source)
	}

	if r.ID.ExtID <= 0 {
		return fmt.Errorf("%w: ext_id must be positive", ErrExternalInput)
	}

	if len(r.Results) == 0 {
		return fmt.Errorf("%w: results must not be empty", ErrExternalInput)
	}

	for _, result := range r.Results {
		if result.Title == "" {
			return fmt.Errorf("%w: result title must not be empty", ErrExternalInput)
		}

		if len(result.Title) > maxTitleLen {
			return fmt.Errorf("%w: result title exceeds %d bytes", ErrExternalInput, maxTitleLen)
		}
	}

	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp must be set", ErrExternalInput)
	}

	if len(r.CommitID) == 0 {
		return fmt.Errorf("%w: commit_id must not be empty", ErrExternalInput)
	}

	return nil
}

// Validate checks a PR retention record before it is written.
func (pr PR) Validate() error {
	if pr.Number <= 0 {
		return fmt.Errorf("%w: pr number must be positive", ErrExternalInput)
	}

	if pr.MergedAt.IsZero() {
		return fmt.Errorf("%w: merged_at must be set", ErrExternalInput)
	}

	switch pr.Status {
	case PRStatusSuccess, PRStatusFailure, PRStatusNeutral, PRStatusUnknown:
	default:
		return fmt.Errorf("%w: unknown pr status %q", ErrExternalInput, pr.Status)
	}

	return nil
}
