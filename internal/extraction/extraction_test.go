package extraction

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestInProcessZipCanExtract(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeTestZip(t, zipPath, map[string]string{"hello.txt": "hello world"})

	z := NewInProcessZip()
	ok, err := z.CanExtract(zipPath)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = z.CanExtract(filepath.Join(dir, "notzip.rar"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInProcessZipExtractWritesFiles(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeTestZip(t, zipPath, map[string]string{
		"hello.txt":        "hello world",
		"nested/inner.txt": "nested content",
	})

	destDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	z := NewInProcessZip()
	extracted, err := z.Extract(context.Background(), zipPath, destDir, "")
	require.NoError(t, err)
	assert.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "nested", "inner.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(data))
}

func TestInProcessZipRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("../escape.txt")
	require.NoError(t, err)
	_, _ = entry.Write([]byte("escape"))
	require.NoError(t, w.Close())
	f.Close()

	destDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	z := NewInProcessZip()
	_, err = z.Extract(context.Background(), zipPath, destDir, "")
	require.Error(t, err)
}

func TestHasRarSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.part01.rar")
	require.NoError(t, os.WriteFile(path, append([]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}, []byte("junk")...), 0o644))

	u := &CLIUnrar{BinaryPath: "unrar"}
	ok, err := u.CanExtract(path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.CanExtract(filepath.Join(dir, "archive.part02.rar"))
	require.NoError(t, err)
	assert.False(t, ok, "non-first volumes must not trigger extraction")
}

func TestHas7zSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.7z")
	require.NoError(t, os.WriteFile(path, append([]byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, []byte("junk")...), 0o644))

	z := &CLI7z{BinaryPath: "7z"}
	ok, err := z.CanExtract(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListExtractedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	files, err := listExtractedFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSafeJoinRejectsEscape(t *testing.T) {
	_, err := safeJoin("/tmp/dest", "../../etc/passwd")
	assert.Error(t, err)

	p, err := safeJoin("/tmp/dest", "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/dest", "sub/file.txt"), p)
}
