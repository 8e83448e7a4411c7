// Package migrations embeds the SQL schema migrations for the ventifact
// store and provides validation for their naming, pairing, sequencing, and
// schema completeness. Grounded on the teacher's two parallel migration
// tools (a top-level migrations/ package and cmd/migrator/'s own
// file-path-based one); this package keeps the former's go:embed-based
// approach as the single source of truth, consumed both by cmd/migrator
// (embedded FS) and by internal/config.RunTestMigrations (file:// URL
// against this directory). Unlike the teacher's generic migration set,
// Validate also checks that every entity spec.md §3 defines has a
// corresponding CREATE TABLE (see requiredTables) — this package ships a
// fixed, known schema rather than an open-ended one, so it can and does
// enforce that schema's shape up front.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// requiredTables are the entities spec.md §3 defines; every one of them
// must have a CREATE TABLE in some embedded .up.sql migration, or the
// store's queries (internal/store) would fail against a freshly migrated
// database.
var requiredTables = []string{
	"test_blueprints",
	"test_run_blueprints",
	"test_runs",
	"test_flakes",
	"prs",
}

var createTablePattern = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?"?([a-z_][a-z0-9_]*)"?`)

//go:embed *.sql
var embeddedFS embed.FS

// migrationFilenameRegex matches the NNNNNN_name.(up|down).sql convention.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{6})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info describes a single parsed migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// EmbeddedMigration wraps the embedded migration files with integrity and
// shape validation, so a corrupt or hand-edited migration set is caught
// before it reaches golang-migrate.
type EmbeddedMigration struct {
	fs        fs.FS
	checksums map[string]string
}

// New creates an EmbeddedMigration. Pass nil to use the files embedded in
// this package; a non-nil fs.FS is accepted for tests that exercise
// validation against a synthetic migration set.
func New(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedFS
	}

	return &EmbeddedMigration{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS returns the underlying filesystem, for handing to golang-migrate's
// iofs source driver.
func (e *EmbeddedMigration) FS() fs.FS {
	return e.fs
}

// List returns every embedded migration filename in lexicographic order,
// filtered to those matching the naming convention.
func (e *EmbeddedMigration) List() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && migrationFilenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Content returns the raw bytes of a single embedded migration file.
func (e *EmbeddedMigration) Content(filename string) ([]byte, error) {
	return fs.ReadFile(e.fs, filename)
}

// Parse extracts the sequence, name, and direction from a migration
// filename.
func (e *EmbeddedMigration) Parse(filename string) (Info, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return Info{}, fmt.Errorf("invalid migration filename %q (expected NNNNNN_name.up.sql or NNNNNN_name.down.sql)", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return Info{}, fmt.Errorf("invalid sequence in filename %q: %w", filename, err)
	}

	return Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// MaxSequence returns the highest migration sequence number, or 0 if no
// migrations are embedded.
func (e *EmbeddedMigration) MaxSequence() int {
	files, err := e.List()
	if err != nil {
		return 0
	}

	max := 0

	for _, f := range files {
		info, err := e.Parse(f)
		if err == nil && info.Sequence > max {
			max = info.Sequence
		}
	}

	return max
}

// Validate checks filename format, up/down pairing, sequence contiguity,
// and (once a checksum baseline exists from a prior call) content
// integrity of every embedded migration.
func (e *EmbeddedMigration) Validate() error {
	files, err := e.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	for _, f := range files {
		if _, err := e.Content(f); err != nil {
			return fmt.Errorf("read migration file %s: %w", f, err)
		}
	}

	if err := e.validatePairing(files); err != nil {
		return err
	}

	if err := e.validateSequence(files); err != nil {
		return err
	}

	if len(e.checksums) > 0 {
		if err := e.validateChecksums(files); err != nil {
			return err
		}
	}

	if err := e.validateRequiredTables(files); err != nil {
		return err
	}

	for _, f := range files {
		content, err := e.Content(f)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", f, err)
		}

		e.checksums[f] = checksum(content)
	}

	return nil
}

func (e *EmbeddedMigration) validatePairing(files []string) error {
	byKey := make(map[string]map[string]bool)

	for _, f := range files {
		info, err := e.Parse(f)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%06d_%s", info.Sequence, info.Name)
		if byKey[key] == nil {
			byKey[key] = make(map[string]bool)
		}

		byKey[key][info.Direction] = true
	}

	for key, directions := range byKey {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

func (e *EmbeddedMigration) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, f := range files {
		info, err := e.Parse(f)
		if err != nil {
			return err
		}

		seen[info.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start at 000001, found %06d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %06d, found %06d", sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}

func (e *EmbeddedMigration) validateChecksums(files []string) error {
	for _, f := range files {
		content, err := e.Content(f)
		if err != nil {
			return fmt.Errorf("read file %s for checksum validation: %w", f, err)
		}

		if stored, ok := e.checksums[f]; ok && checksum(content) != stored {
			return fmt.Errorf("checksum mismatch for %s: file has been modified", f)
		}
	}

	return nil
}

// validateRequiredTables scans every .up.sql migration's CREATE TABLE
// statements and fails if any of requiredTables is missing, catching an
// omitted or misnamed migration before it reaches the store layer rather
// than surfacing as a confusing "relation does not exist" at query time.
func (e *EmbeddedMigration) validateRequiredTables(files []string) error {
	found := make(map[string]bool, len(requiredTables))

	for _, f := range files {
		info, err := e.Parse(f)
		if err != nil {
			return err
		}

		if info.Direction != "up" {
			continue
		}

		content, err := e.Content(f)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", f, err)
		}

		for _, match := range createTablePattern.FindAllStringSubmatch(string(content), -1) {
			found[strings.ToLower(match[1])] = true
		}
	}

	var missing []string

	for _, table := range requiredTables {
		if !found[table] {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing migration for required table(s): %s", strings.Join(missing, ", "))
	}

	return nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
