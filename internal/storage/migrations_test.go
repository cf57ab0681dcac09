package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationSkipsExistingColumn(t *testing.T) {
	ctx := context.Background()
	db := rawTestDB(t)
	m := &MigrationManager{db: db, driver: "sqlite", files: fstest.MapFS{
		"0001_listings.sql": {Data: []byte(`
			CREATE TABLE listings (id INTEGER PRIMARY KEY, price REAL);
			ALTER TABLE listings ADD COLUMN zip_code TEXT;
			ALTER TABLE listings ADD COLUMN zip_code TEXT;
			INSERT INTO listings (price, zip_code) VALUES (485000, '77008');
		`)},
	}}

	status, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_listings.sql"}, status.Ran)

	var zip string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT zip_code FROM listings`).Scan(&zip))
	assert.Equal(t, "77008", zip)
}

func TestMigrationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := rawTestDB(t)
	m := &MigrationManager{db: db, driver: "sqlite", files: fstest.MapFS{
		"0001_broken.sql": {Data: []byte(`
			CREATE TABLE permits (id INTEGER PRIMARY KEY);
			INSERT INTO missing_table VALUES (1);
		`)},
	}}

	_, err := m.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_broken.sql")

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'permits'`).Scan(&n))
	assert.Zero(t, n)

	status, err := m.CheckMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_broken.sql"}, status.Pending)
}

func TestIsDuplicateColumn(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite", errors.New("duplicate column name: zip_code"), true},
		{"postgres", &pq.Error{Code: "42701", Message: `column "zip_code" of relation "listings" already exists`}, true},
		{"other postgres error", &pq.Error{Code: "42P01", Message: `relation "listings" does not exist`}, false},
		{"other", errors.New("no such table: listings"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicateColumn(tt.err))
		})
	}
}
