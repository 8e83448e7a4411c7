// Package main is cmd/maintainer, a thin periodic driver: on a ticker, it
// calls store.PurgeRunsBefore, store.PurgePRsBefore, and store.MarkFlakesSince
// against retention/watermark values loaded from a YAML schedule file.
// Grounded on cmd/ingestkafka/main.go's startup shape combined with
// internal/aliasing.LoadConfig's dotfile-based declarative config.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	vconfig "github.com/ventifact/ventifact/internal/config"
	"github.com/ventifact/ventifact/internal/store"
)

const (
	version = "1.0.0-dev"
	name    = "maintainer"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	schedulePath := flag.String("schedule", "", "path to the maintainer schedule YAML file")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: vconfig.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	path := *schedulePath
	if path == "" {
		path = vconfig.GetEnvStr(SchedulePathEnvVar, DefaultSchedulePath)
	}

	sched, err := loadSchedule(path)
	if err != nil {
		logger.Error("failed to load maintainer schedule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolved, err := sched.resolve()
	if err != nil {
		logger.Error("invalid maintainer schedule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbConfig := store.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := store.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	st := store.NewStore(conn, store.WithLogger(logger))

	logger.Info("starting maintainer",
		slog.String("service", name),
		slog.String("version", version),
		slog.Duration("interval", resolved.interval),
		slog.Duration("test_run_retention", resolved.testRunRetention),
		slog.Duration("pr_retention", resolved.prRetention),
		slog.Duration("flake_watermark", resolved.flakeWatermark),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &daemon{store: st, schedule: resolved, logger: logger}
	d.run(ctx)

	logger.Info("maintainer stopped")
}

// retainer is the subset of internal/ingest.Store (implemented by
// internal/store.Store) the maintainer actually drives. Declared locally so
// tests can supply a fake without implementing the full store contract.
type retainer interface {
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int, error)
	PurgePRsBefore(ctx context.Context, cutoff time.Time) (int, error)
	MarkFlakesSince(ctx context.Context, watermark time.Time) (int, error)
}

// daemon drives the periodic sweep. Kept as a struct (rather than free
// functions closing over variables) so tests can invoke sweep() directly
// against a fake store without standing up a ticker.
type daemon struct {
	store    retainer
	schedule resolvedSchedule
	logger   *slog.Logger
}

// run ticks at schedule.interval, running one sweep immediately and then on
// every tick, until ctx is cancelled.
func (d *daemon) run(ctx context.Context) {
	d.sweep(ctx)

	ticker := time.NewTicker(d.schedule.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep runs one pass of C5, PR retention, and C6 against now's retention
// horizons. Each step logs and continues past the others' failure: a flake
// detection error shouldn't block retention, and vice versa.
func (d *daemon) sweep(ctx context.Context) {
	now := time.Now().UTC()

	runCutoff := now.Add(-d.schedule.testRunRetention)
	if deleted, err := d.store.PurgeRunsBefore(ctx, runCutoff); err != nil {
		d.logger.ErrorContext(ctx, "purge runs failed", slog.String("error", err.Error()))
	} else {
		d.logger.InfoContext(ctx, "purged expired test runs", slog.Int("deleted", deleted), slog.Time("cutoff", runCutoff))
	}

	prCutoff := now.Add(-d.schedule.prRetention)
	if deleted, err := d.store.PurgePRsBefore(ctx, prCutoff); err != nil {
		d.logger.ErrorContext(ctx, "purge prs failed", slog.String("error", err.Error()))
	} else {
		d.logger.InfoContext(ctx, "purged expired prs", slog.Int("deleted", deleted), slog.Time("cutoff", prCutoff))
	}

	flakeWatermark := now.Add(-d.schedule.flakeWatermark)
	if marked, err := d.store.MarkFlakesSince(ctx, flakeWatermark); err != nil {
		d.logger.ErrorContext(ctx, "mark flakes failed", slog.String("error", err.Error()))
	} else {
		d.logger.InfoContext(ctx, "marked flakes", slog.Int("inserted", marked), slog.Time("watermark", flakeWatermark))
	}
}
