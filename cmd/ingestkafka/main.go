// Package main wires internal/ingestkafka.Consumer to an internal/store.Store
// and runs it until shutdown. Grounded on cmd/correlator/main.go's startup
// shape (flag parsing, slog JSON handler, config summary log) combined with
// internal/api/server.go's Start's signal.Notify-based graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	vconfig "github.com/ventifact/ventifact/internal/config"
	"github.com/ventifact/ventifact/internal/ingestkafka"
	"github.com/ventifact/ventifact/internal/store"
)

const (
	version = "1.0.0-dev"
	name    = "ingestkafka"

	defaultSourceRPS = 50
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: vconfig.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

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

	kafkaCfg := ingestkafka.Config{
		Brokers:     vconfig.ParseCommaSeparatedList(vconfig.GetEnvStr("KAFKA_BROKERS", "localhost:9092")),
		Topic:       vconfig.GetEnvStr("KAFKA_TOPIC", "test-runs"),
		GroupID:     vconfig.GetEnvStr("KAFKA_GROUP_ID", "ventifact-ingest"),
		SharedToken: vconfig.GetEnvStr("INGEST_SHARED_TOKEN", ""),
		SourceRPS:   vconfig.GetEnvInt("INGEST_SOURCE_RPS", defaultSourceRPS),
	}

	if kafkaCfg.SharedToken == "" {
		logger.Error("INGEST_SHARED_TOKEN must be set")
		os.Exit(1)
	}

	consumer, err := ingestkafka.NewConsumer(kafkaCfg, st, ingestkafka.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create kafka consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = consumer.Close() }()

	logger.Info("starting ingest consumer",
		slog.String("service", name),
		slog.String("version", version),
		slog.Any("brokers", kafkaCfg.Brokers),
		slog.String("topic", kafkaCfg.Topic),
		slog.String("group_id", kafkaCfg.GroupID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("ingest consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("ingest consumer stopped")
}
