package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventifact/ventifact/internal/ingest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithTransientRetry_SucceedsOnFirstTry(t *testing.T) {
	calls := 0

	err := withTransientRetry(context.Background(), discardLogger(), "op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTransientRetry_RetriesTransientErrorUntilSuccess(t *testing.T) {
	calls := 0

	err := withTransientRetry(context.Background(), discardLogger(), "op", func() error {
		calls++
		if calls < maxTransientRetries {
			return ingest.ErrTransientDB
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxTransientRetries, calls)
}

func TestWithTransientRetry_StopsImmediatelyOnNonTransientError(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")

	err := withTransientRetry(context.Background(), discardLogger(), "op", func() error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithTransientRetry_ExhaustsAttemptsAndSurfacesError(t *testing.T) {
	calls := 0

	err := withTransientRetry(context.Background(), discardLogger(), "op", func() error {
		calls++
		return ingest.ErrTransientDB
	})

	require.ErrorIs(t, err, ingest.ErrTransientDB)
	assert.Equal(t, maxTransientRetries, calls)
}

func TestWithTransientRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0

	err := withTransientRetry(ctx, discardLogger(), "op", func() error {
		calls++
		cancel()

		return ingest.ErrTransientDB
	})

	require.ErrorIs(t, err, ingest.ErrTransientDB)
	assert.Equal(t, 1, calls)
}

func TestWithTransientRetry_PacesBetweenAttempts(t *testing.T) {
	calls := 0
	start := time.Now()

	err := withTransientRetry(context.Background(), discardLogger(), "op", func() error {
		calls++
		if calls < 2 {
			return ingest.ErrTransientDB
		}

		return nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), retryBaseDelay)
}
