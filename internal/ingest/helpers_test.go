package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

func newTestRepos(t *testing.T) *storage.Repositories {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "ingest.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = storage.NewMigrationManager(db, "sqlite").Migrate(context.Background())
	require.NoError(t, err)
	return storage.NewRepositories(db)
}

func writeFile(t *testing.T, base, rel, content string) {
	t.Helper()
	path := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
