package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_MissingFileYieldsEmptyCache(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "nope", FileName), zap.NewNop())
	require.NotNil(t, c)
	require.Equal(t, 0, c.Len())
	require.False(t, c.Dirty())
}

func TestLoad_CorruptFileYieldsEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("not json {"), 0o644))

	c := Load(path, zap.NewNop())
	require.Equal(t, 0, c.Len())
}

func TestInsert_TracksDirty(t *testing.T) {
	c := New()
	require.False(t, c.Dirty())

	c.Insert("abc")
	require.True(t, c.Dirty())
	require.True(t, c.Contains("abc"))
	require.False(t, c.Contains("def"))
}

func TestInsert_ExistingEntryDoesNotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	c := New()
	c.Insert("abc")
	c.Save(path, zap.NewNop())

	reloaded := Load(path, zap.NewNop())
	require.False(t, reloaded.Dirty())
	reloaded.Insert("abc")
	require.False(t, reloaded.Dirty(), "re-inserting a known fingerprint is a no-op")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", FileName)

	c := New()
	c.Insert("fp-one")
	c.Insert("fp-two")
	c.Save(path, zap.NewNop())

	reloaded := Load(path, zap.NewNop())
	require.Equal(t, 2, reloaded.Len())
	require.True(t, reloaded.Contains("fp-one"))
	require.True(t, reloaded.Contains("fp-two"))
}

func TestPath_RelativeToConfigDir(t *testing.T) {
	got := Path(".cache", filepath.Join("project", "taskforge.toml"))
	require.Equal(t, filepath.Join("project", ".cache", FileName), got)
}

func TestPath_DefaultsToConfigDir(t *testing.T) {
	got := Path("", filepath.Join("project", "taskforge.toml"))
	require.Equal(t, filepath.Join("project", FileName), got)
}

func TestPath_AbsoluteCacheDirWins(t *testing.T) {
	got := Path("/var/cache/forge", filepath.Join("project", "taskforge.toml"))
	require.Equal(t, filepath.Join("/var/cache/forge", FileName), got)
}
