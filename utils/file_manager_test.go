package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobDirIsUniqueAndCleanedUp(t *testing.T) {
	base := filepath.Join(t.TempDir(), "temp")

	first, err := CreateJobDir(base, "compose")
	require.NoError(t, err)
	second, err := CreateJobDir(base, "compose")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(filepath.Base(first), "compose-"))
	assert.Equal(t, base, filepath.Dir(first))

	require.NoError(t, os.WriteFile(filepath.Join(first, "caption.txt"), []byte("hi"), 0644))
	size, err := GetFileSize(filepath.Join(first, "caption.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	require.NoError(t, CleanupJobDir(first))
	assert.NoDirExists(t, first)
	assert.DirExists(t, second)
	assert.NoError(t, CleanupJobDir(""))
}
