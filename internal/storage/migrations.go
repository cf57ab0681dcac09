package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	db     *sql.DB
	files  fs.FS
	driver string // "sqlite" or "postgres"
}

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool
	Pending  []string
	Applied  []string
	// Ran lists the migrations applied by the last Migrate call.
	Ran   []string
	Total int
}

// NewMigrationManager creates a migration manager over the embedded migrations.
func NewMigrationManager(db *sql.DB, driver string) *MigrationManager {
	sub, _ := fs.Sub(migrationFS, "migrations")
	return &MigrationManager{db: db, files: sub, driver: driver}
}

// Migrate checks status and applies anything pending.
func (m *MigrationManager) Migrate(ctx context.Context) (*MigrationStatus, error) {
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	status.Ran = status.Pending
	status.Applied = append(status.Applied, status.Pending...)
	status.Pending = nil
	status.UpToDate = true
	return status, nil
}

// CheckMigrations reports which migrations have not been applied yet.
func (m *MigrationManager) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Total: len(migrations)}
	for _, name := range migrations {
		if applied[versionOf(name)] {
			status.Applied = append(status.Applied, name)
		} else {
			status.Pending = append(status.Pending, name)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// RunMigrations runs all pending migrations in order.
func (m *MigrationManager) RunMigrations(ctx context.Context, status *MigrationStatus) error {
	sort.Strings(status.Pending)
	for _, name := range status.Pending {
		if err := m.runMigration(ctx, name); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	return nil
}

func (m *MigrationManager) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	if m.driver == "postgres" {
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id SERIAL PRIMARY KEY,
				version TEXT UNIQUE NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`
	} else {
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				version TEXT UNIQUE NOT NULL,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles picks one file per version: the _sqlite.sql variant on
// sqlite when present, the plain .sql file otherwise.
func (m *MigrationManager) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	sqliteFiles := make(map[string]string)
	plainFiles := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteFiles[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			plainFiles[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var out []string
	for version, plain := range plainFiles {
		if m.driver != "postgres" {
			if lite, ok := sqliteFiles[version]; ok {
				out = append(out, lite)
				continue
			}
		}
		out = append(out, plain)
	}
	if m.driver != "postgres" {
		for version, lite := range sqliteFiles {
			if _, ok := plainFiles[version]; !ok {
				out = append(out, lite)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) runMigration(ctx context.Context, name string) error {
	data, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitSQLStatements(string(data)) {
		if err := execStatement(ctx, tx, stmt); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`, versionOf(name)); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// versionOf strips the dialect suffix so both variants share a version.
func versionOf(name string) string {
	if strings.HasSuffix(name, "_sqlite.sql") {
		return strings.TrimSuffix(name, "_sqlite.sql")
	}
	return strings.TrimSuffix(name, ".sql")
}

// execStatement runs stmt under a savepoint so an ADD COLUMN that already
// exists can be skipped without aborting the surrounding transaction, which
// postgres does on any failed statement.
func execStatement(ctx context.Context, tx *sql.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT migration_stmt"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if !isDuplicateColumn(err) {
			return err
		}
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT migration_stmt"); err != nil {
			return fmt.Errorf("rollback to savepoint: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT migration_stmt")
	return err
}

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42701"
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// splitSQLStatements splits SQL text on semicolons outside string literals
// and drops comment-only fragments.
func splitSQLStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	var quote byte

	flush := func() {
		stmt := strings.TrimSpace(stripComments(current.String()))
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		if inString {
			current.WriteByte(c)
			if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = true
			quote = c
			current.WriteByte(c)
		case ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return statements
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
