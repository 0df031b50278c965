package tokenfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileNotFound(t *testing.T) {
	tok, err := Load("/nonexistent/path/remarkable.token")
	assert.Empty(t, tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialLoad)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialLoad)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoad_TrimsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")
	require.NoError(t, os.WriteFile(path, []byte("abc.def.ghi\n"), 0o600))

	tok, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "remarkable.token")

	require.NoError(t, Save(path, "refresh-123"))

	tok, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh-123", tok)
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")

	require.NoError(t, Save(path, "first"))
	require.NoError(t, Save(path, "second"))

	tok, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestSave_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")
	require.NoError(t, Save(path, "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "remarkable.token"), "tok"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remarkable.token", entries[0].Name())
}

func TestSave_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// Parent "directory" is a regular file, so MkdirAll fails.
	err := Save(filepath.Join(blocker, "remarkable.token"), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialStore)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")
	require.NoError(t, Save(path, "tok"))

	removed, err := Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remarkable.token")
	s := NewStore(path)
	assert.Equal(t, path, s.Path())

	_, err := s.Load()
	require.ErrorIs(t, err, ErrCredentialLoad)

	require.NoError(t, s.Save("tok"))

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}
