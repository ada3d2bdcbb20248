package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesUniqueDirectories(t *testing.T) {
	root := t.TempDir()

	w1, err := New(root)
	require.NoError(t, err)
	w2, err := New(root)
	require.NoError(t, err)

	assert.NotEqual(t, w1.Path, w2.Path)
	assert.DirExists(t, w1.Path)
	assert.DirExists(t, w2.Path)
}

func TestWriteFileCreatesParents(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Remove()

	require.NoError(t, w.WriteFile("src/deep/nested/file.go", "package deep"))

	data, err := os.ReadFile(filepath.Join(w.Path, "src", "deep", "nested", "file.go"))
	require.NoError(t, err)
	assert.Equal(t, "package deep", string(data))
}

func TestWriteFileRejectsEscapes(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Remove()

	assert.Error(t, w.WriteFile("../outside.txt", "x"))
	assert.Error(t, w.WriteFile("/etc/passwd", "x"))
	assert.Error(t, w.WriteFile(".", "x"))
}

func TestFileTree(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Remove()

	require.NoError(t, w.WriteFile("main.go", "x"))
	require.NoError(t, w.WriteFile("src/app.js", "x"))
	require.NoError(t, os.MkdirAll(filepath.Join(w.Path, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.Path, ".git", "objects", "ab"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(w.Path, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.Path, "node_modules", "pkg", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(w.Path, ".env"), []byte("x"), 0o644))

	files, truncated, err := w.FileTree(0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, []string{"main.go", "src/app.js"}, files)
}

func TestFileTreeTruncates(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Remove()

	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteFile(filepath.Join("src", string(rune('a'+i))+".go"), "x"))
	}

	files, truncated, err := w.FileTree(4)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, files, 4)
}

func TestRemoveRelaxesPermissions(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	locked := filepath.Join(w.Path, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "f"), []byte("x"), 0o644))
	// Read-only directory makes entry removal fail on the first pass.
	require.NoError(t, os.Chmod(locked, 0o555))

	require.NoError(t, w.Remove())
	assert.NoDirExists(t, w.Path)
}
