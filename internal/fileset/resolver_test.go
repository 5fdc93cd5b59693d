package fileset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsGlobPattern(t *testing.T) {
	require.True(t, IsGlobPattern("src/*.go"))
	require.True(t, IsGlobPattern("file?.txt"))
	require.True(t, IsGlobPattern("[ab].txt"))
	require.False(t, IsGlobPattern("src/main.go"))
}

func TestResolve_LiteralPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a, "a")

	r := NewResolver(zap.NewNop())
	paths, err := r.Resolve([]string{a, filepath.Join(dir, "missing.txt")})
	require.NoError(t, err)
	require.Equal(t, []string{a}, paths, "missing literal paths are dropped")
}

func TestResolve_GlobKeepsRegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.txt"), 0o755))

	r := NewResolver(zap.NewNop())
	paths, err := r.Resolve([]string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
	}, paths)
}

func TestResolve_DoubleStarGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.go"), "a")
	writeFile(t, filepath.Join(dir, "src", "deep", "b.go"), "b")

	r := NewResolver(zap.NewNop())
	paths, err := r.Resolve([]string{filepath.Join(dir, "src", "**", "*.go")})
	require.NoError(t, err)
	require.Contains(t, paths, filepath.Join(dir, "src", "deep", "b.go"))
}

func TestResolve_DeduplicatesAcrossPatterns(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a, "a")

	r := NewResolver(zap.NewNop())
	paths, err := r.Resolve([]string{a, filepath.Join(dir, "*.txt"), a})
	require.NoError(t, err)
	require.Equal(t, []string{a}, paths)
}

func TestResolve_NoMatchesIsNotAnError(t *testing.T) {
	dir := t.TempDir()

	r := NewResolver(zap.NewNop())
	paths, err := r.Resolve([]string{filepath.Join(dir, "*.nothing")})
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestRemoveOutputs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "out.bin")
	sub := filepath.Join(dir, "build")
	writeFile(t, file, "x")
	writeFile(t, filepath.Join(sub, "obj.o"), "o")

	r := NewResolver(zap.NewNop())
	require.NoError(t, r.RemoveOutputs([]string{file, sub}))

	_, err := os.Stat(file)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	require.True(t, os.IsNotExist(err), "directories are removed recursively")
}
