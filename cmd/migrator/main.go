// Package main provides the database migration CLI for ventifact: embedded,
// checksummed SQL migrations applied via golang-migrate, supporting
// up/down/status/version/drop for zero-config deployment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ventifact/ventifact/migrations"
)

const (
	version = "1.0.0-dev"
	name    = "migrator"
)

// ErrUnknownCommand is returned for any command not in the up/down/status/
// version/drop set.
var ErrUnknownCommand = errors.New("unknown command")

// ErrDropRequiresForce is returned when drop is used without --force.
var ErrDropRequiresForce = errors.New("drop command requires --force flag (this will destroy all data)")

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
		force       = flag.Bool("force", false, "Force dangerous operations without confirmation")
	)

	flag.Parse()

	if *showVersion {
		printVersionInfo()
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]

	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	runner, err := NewMigrationRunner(config)
	if err != nil {
		log.Fatalf("failed to create migration runner: %v", err)
	}
	defer func() { _ = runner.Close() }()

	if err := executeCommand(command, runner, *force); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

func executeCommand(command string, runner MigrationRunner, force bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !force {
			return ErrDropRequiresForce
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func printVersionInfo() {
	em := migrations.New(nil)
	log.Printf("%s v%s", name, version)
	log.Printf("max schema version: v%06d", em.MaxSequence())
}

func printUsage() {
	fmt.Printf(`%s v%s - ventifact database migration tool

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Rollback the last migration
    status  Show migration status
    version Show current migration version
    drop    Drop all tables (DESTRUCTIVE - requires --force flag)

OPTIONS:
    --help     Show this help message
    --version  Show version information
    --force    Force dangerous operations without confirmation

ENVIRONMENT VARIABLES:
    DATABASE_URL    PostgreSQL connection string (REQUIRED)
    MIGRATION_TABLE Name of migration tracking table (default: schema_migrations)

EXAMPLES:
    %s up
    %s status
    %s down
    %s drop --force
    %s --version
`, name, version, name, name, name, name, name, name)
}
