package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRetainer struct {
	purgeRunsCalls int
	purgePRsCalls  int
	markFlakeCalls int
	purgeRunsErr   error
}

func (f *fakeRetainer) PurgeRunsBefore(context.Context, time.Time) (int, error) {
	f.purgeRunsCalls++
	if f.purgeRunsErr != nil {
		return 0, f.purgeRunsErr
	}

	return 3, nil
}

func (f *fakeRetainer) PurgePRsBefore(context.Context, time.Time) (int, error) {
	f.purgePRsCalls++
	return 1, nil
}

func (f *fakeRetainer) MarkFlakesSince(context.Context, time.Time) (int, error) {
	f.markFlakeCalls++
	return 2, nil
}

func testDaemon(t *testing.T, r *fakeRetainer) *daemon {
	t.Helper()

	return &daemon{
		store:    r,
		schedule: resolvedSchedule{interval: time.Millisecond, testRunRetention: time.Hour, prRetention: time.Hour, flakeWatermark: time.Hour},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDaemon_Sweep_InvokesAllThreeOperations(t *testing.T) {
	r := &fakeRetainer{}
	d := testDaemon(t, r)

	d.sweep(context.Background())

	assert.Equal(t, 1, r.purgeRunsCalls)
	assert.Equal(t, 1, r.purgePRsCalls)
	assert.Equal(t, 1, r.markFlakeCalls)
}

func TestDaemon_Sweep_ContinuesPastPurgeRunsError(t *testing.T) {
	r := &fakeRetainer{purgeRunsErr: errors.New("boom")}
	d := testDaemon(t, r)

	d.sweep(context.Background())

	assert.Equal(t, 1, r.purgePRsCalls)
	assert.Equal(t, 1, r.markFlakeCalls)
}

func TestDaemon_Run_TicksUntilCancelled(t *testing.T) {
	r := &fakeRetainer{}
	d := testDaemon(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d.run(ctx)

	assert.GreaterOrEqual(t, r.purgeRunsCalls, 1)
}
