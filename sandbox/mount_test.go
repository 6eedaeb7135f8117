package sandbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDestNoChroot(t *testing.T) {
	dst, err := resolveDest("", "/tmp/foo")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/foo", dst)
}

func TestResolveDestUnderChroot(t *testing.T) {
	dir := t.TempDir()
	dst, err := resolveDest(dir, "/tmp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tmp"), dst)
}

func TestResolveDestClampsEscapeViaSecureJoin(t *testing.T) {
	dir := t.TempDir()
	dst, err := resolveDest(dir, "/../../../../etc/passwd")
	require.NoError(t, err)
	// SecureJoin clamps ".." components to the chroot root instead of
	// escaping it.
	assert.Equal(t, filepath.Join(dir, "etc/passwd"), dst)
}
