package sandbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileThenReadTrimmed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, writeFile(path, "12345"))

	got, err := readTrimmed(path)
	require.NoError(t, err)
	assert.Equal(t, "12345", got)
}

func TestWriteFileTruncatesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, writeFile(path, "999999999"))
	require.NoError(t, writeFile(path, "1"))

	got, err := readTrimmed(path)
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestReadUintParsesTrimmedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuacct.usage_sys")
	require.NoError(t, writeFile(path, "42\n"))

	v, err := readUint(path)
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
}

func TestReadUintErrorsOnGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, writeFile(path, "not-a-number"))

	_, err := readUint(path)
	assert.Error(t, err)
}
