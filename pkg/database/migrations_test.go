package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_RunIsIdempotent(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	applied, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = m.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	for _, table := range []string{"entities", "status_history", "documents", "signatures", "consent_records", "audit_log"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrator_RunFSOrdersByVersion(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	fsys := fstest.MapFS{
		"002_add_column.sql": {Data: []byte("ALTER TABLE widgets ADD COLUMN colour TEXT;")},
		"001_widgets.sql":    {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"README.md":          {Data: []byte("ignored")},
	}

	applied, err := m.RunFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, versions)
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.RunFS(fstest.MapFS{"001_broken.sql": {Data: []byte("CREATE TABLE (;")}})
	require.Error(t, err)

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestMigrator_RejectsBadFilename(t *testing.T) {
	db := openMemory(t)
	_, err := NewMigrator(db, zap.NewNop()).RunFS(fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}
