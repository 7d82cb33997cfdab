package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploads_SaveAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	u, err := NewUploads(dir)
	require.NoError(t, err)

	n, err := u.Save("report.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	b, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))

	_, err = u.Save("report.txt", strings.NewReader("again"))
	require.NoError(t, err)
	b, _ = os.ReadFile(filepath.Join(dir, "report.txt"))
	assert.Equal(t, "again", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, u.Remove("report.txt"))
	require.NoError(t, u.Remove("report.txt"))
	_, err = os.Stat(filepath.Join(dir, "report.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploads_RejectsPaths(t *testing.T) {
	u, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape.txt", "a/b.txt"} {
		_, err := u.Save(name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestUploads_Exists(t *testing.T) {
	u, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	assert.False(t, u.Exists("report.txt"))
	_, err = u.Save("report.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, u.Exists("report.txt"))
	assert.False(t, u.Exists("../report.txt"))

	require.NoError(t, u.Remove("report.txt"))
	assert.False(t, u.Exists("report.txt"))
}
