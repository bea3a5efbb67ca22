package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteBootstrapsPreferences(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "prefs.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='preferences';").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "preferences", name)

	// bootstrapping twice is harmless
	require.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestCheckLocalFilesystem(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "a", "b", "prefs.db")

	var inspected string
	detector := func(kind string) func(string) (string, error) {
		return func(p string) (string, error) {
			inspected = p
			return kind, nil
		}
	}

	assert.NoError(t, checkLocalFilesystem(missing, detector("ext4")))
	assert.Equal(t, dir, inspected, "closest existing ancestor is inspected")

	err := checkLocalFilesystem(missing, detector("NFS"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NFS mount")

	failing := func(string) (string, error) { return "", errors.New("unsupported") }
	assert.NoError(t, checkLocalFilesystem(missing, failing))
}
