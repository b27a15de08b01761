package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/domain"
)

func TestWriteAtPreAllocatesOnce(t *testing.T) {
	fw := NewFileWriter()
	path := filepath.Join(t.TempDir(), "file.part")
	f := &domain.File{Name: "file.bin", Size: 10, PartPath: path}

	require.NoError(t, fw.WriteAt(f, []byte("abc"), 0))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size(), "pre-allocated to full size on first write")

	require.NoError(t, fw.WriteAt(f, []byte("xyz"), 7))
	require.NoError(t, fw.CloseFile(path, 10))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data[0:3]))
	assert.Equal(t, "xyz", string(data[7:10]))
}

func TestCloseFileTruncatesToFinalSize(t *testing.T) {
	fw := NewFileWriter()
	path := filepath.Join(t.TempDir(), "file.part")
	f := &domain.File{Name: "file.bin", Size: 100, PartPath: path}

	require.NoError(t, fw.WriteAt(f, []byte("hello"), 0))
	require.NoError(t, fw.CloseFile(path, 5))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}
