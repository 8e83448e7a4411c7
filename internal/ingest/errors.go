package ingest

import "errors"

// Sentinel errors for the six error kinds from spec.md §7. Implementations
// wrap these with %w so callers can use errors.Is regardless of the
// underlying driver error. Classification from *pq.Error codes happens in
// internal/store (grounded on isDatabaseConnectionError in the teacher's
// internal/storage/lineage_store.go).
var (
	// ErrTransientDB is a network/connection timeout or deadlock retry
	// candidate. Policy: retry the whole operation with bounded backoff;
	// surface to the caller on exhaustion.
	ErrTransientDB = errors.New("ingest: transient database error")

	// ErrConstraintViolation is an FK or uniqueness conflict not expected by
	// the protocol — indicates an invariant bug, not a normal race (the
	// protocol's own ON CONFLICT DO NOTHING clauses absorb expected races).
	ErrConstraintViolation = errors.New("ingest: constraint violation")

	// ErrCorruptPayload is a stored result_spec whose length is not of the
	// form 1+8k. Fatal to the current operation; no silent repair.
	ErrCorruptPayload = errors.New("ingest: corrupt result_spec payload")

	// ErrMemberMismatch means a prior run's stored members disagree with
	// what the shared blueprint_id implies (cannot happen if invariants
	// hold; treated as fatal when observed).
	ErrMemberMismatch = errors.New("ingest: member list mismatch for shared blueprint")

	// ErrCancelled means the caller's context was cancelled; the in-flight
	// transaction is rolled back and the operation is not retried.
	ErrCancelled = errors.New("ingest: operation cancelled")

	// ErrExternalInput means malformed input to insert_test_run; rejected
	// before any transaction is opened.
	ErrExternalInput = errors.New("ingest: invalid external input")
)
