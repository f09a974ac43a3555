package store

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/callgraph/pkg/schema"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migration is one embedded script, named NNN_description.sql.
type migration struct {
	version int
	name    string
	script  string
}

// loadMigrations reads the embedded scripts ordered by version.
func loadMigrations() ([]migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, storeError(err, "read migrations")
	}
	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		base := strings.TrimSuffix(e.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil || version <= 0 {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "migration %s: name must be NNN_description.sql", e.Name())
		}
		body, err := migrationFiles.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, storeError(err, "read migration %s", e.Name())
		}
		out = append(out, migration{version: version, name: name, script: string(body)})
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "duplicate migration version %d", out[i].version)
		}
	}
	return out, nil
}

// schemaVersion returns the highest applied migration, creating the
// bookkeeping table on first use.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return 0, storeError(err, "create schema_version")
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, storeError(err, "read schema_version")
	}
	return v, nil
}

// runMigrations applies every script newer than the recorded version, each
// in its own transaction.
func runMigrations(ctx context.Context, db *sql.DB) error {
	all, err := loadMigrations()
	if err != nil {
		return err
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range all {
		if m.version > current {
			if err := applyMigration(ctx, db, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeError(err, "migration %d: begin", m.version)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range splitStatements(m.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storeError(err, "migration %d (%s) statement %d", m.version, m.name, i+1)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return storeError(err, "migration %d: record version", m.version)
	}
	if err := tx.Commit(); err != nil {
		return storeError(err, "migration %d: commit", m.version)
	}
	return nil
}

// splitStatements drops "--" comment lines, then splits on semicolons.
func splitStatements(script string) []string {
	var code strings.Builder
	for line := range strings.Lines(script) {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			code.WriteString(line)
		}
	}
	var stmts []string
	for raw := range strings.SplitSeq(code.String(), ";") {
		if s := strings.TrimSpace(raw); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func storeError(err error, format string, args ...any) error {
	return schema.NewErrorf(schema.ErrCodeStore, format+": %v", append(args, err)...).WithCause(err)
}
