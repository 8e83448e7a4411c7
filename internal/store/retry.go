package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ventifact/ventifact/internal/ingest"
)

const (
	// maxTransientRetries is the bounded attempt count for ErrTransientDB
	// (spec.md §7: retry-with-backoff, exhaustion surfaces to the caller).
	maxTransientRetries = 3

	// retryBaseDelay is the pacing between attempts, scaled linearly by
	// attempt number. Grounded on the batch-pacing sleep in the teacher's
	// cleanupExpiredIdempotencyKeys (internal/storage/lineage_store.go),
	// repurposed from inter-batch pacing to inter-attempt backoff.
	retryBaseDelay = 100 * time.Millisecond
)

// withTransientRetry runs op up to maxTransientRetries times, retrying only
// on ingest.ErrTransientDB (connection-class and deadlock pq errors, spec.md §7's retry
// policy) and returning any other error immediately. Grounded on the
// teacher's cleanupExpiredIdempotencyKeys: a bounded loop that checks
// ctx.Err() / ctx.Done() before each further attempt and paces itself with
// a sleep between tries rather than spinning.
func withTransientRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var err error

	for attempt := 1; attempt <= maxTransientRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !errors.Is(err, ingest.ErrTransientDB) {
			return err
		}

		if attempt == maxTransientRetries {
			break
		}

		logger.WarnContext(ctx, "retrying after transient database error",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		}
	}

	logger.ErrorContext(ctx, "exhausted retries on transient database error",
		slog.String("op", op),
		slog.Int("attempts", maxTransientRetries),
		slog.String("error", err.Error()),
	)

	return err
}
