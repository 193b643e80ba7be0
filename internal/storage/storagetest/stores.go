package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storyshare/storyshare-api/internal/storage"
	"github.com/storyshare/storyshare-api/internal/storage/memory"
	"github.com/storyshare/storyshare-api/internal/storage/sql"
)

// NewMemory returns an empty in-memory store.
func NewMemory(t *testing.T) storage.Storage {
	return memory.New()
}

// NewSQLite returns a migrated SQLite store in a temp directory. The DSN
// is a bare file path, the way operators usually configure it.
func NewSQLite(t *testing.T) storage.Storage {
	t.Helper()

	store, err := sql.New("sqlite3", filepath.Join(t.TempDir(), "storyshare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// Each runs fn once per backend, each time with a fresh store.
func Each(t *testing.T, fn func(t *testing.T, store storage.Storage)) {
	backends := []struct {
		name     string
		newStore Factory
	}{
		{"memory", NewMemory},
		{"sqlite", NewSQLite},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) { fn(t, b.newStore(t)) })
	}
}
