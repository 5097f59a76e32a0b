package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesDirectoriesAndOverwrites(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel := filepath.Join("cs.101", "section-a", "lab-1", "alice", "main.py")
	require.NoError(t, store.WriteAtomic(rel, []byte("v1")))
	require.NoError(t, store.WriteAtomic(rel, []byte("v2")))

	data, err := store.ReadFile(rel)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := store.ReadDir(filepath.Dir(rel))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "main.py", entries[0].Name())
}

func TestResolveRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.WriteAtomic("../evil", []byte("x")), ErrOutsideRoot)
	_, err = store.ReadFile("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	assert.Empty(t, store.Path("a/../../b"))
}

func TestReadDirMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.ReadDir("nope")
	assert.True(t, os.IsNotExist(err))
}
