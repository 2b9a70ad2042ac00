//go:build unix

package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.mpg")
	writeFile(t, target, "x")

	assert.True(t, pathExists(target))
	assert.True(t, pathExists(dir))
	assert.False(t, pathExists(filepath.Join(dir, "missing.mpg")))

	link := filepath.Join(dir, "link.mpg")
	require.NoError(t, os.Symlink(target, link))
	assert.True(t, pathExists(link))

	dangling := filepath.Join(dir, "dangling.mpg")
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.mpg"), dangling))
	assert.False(t, pathExists(dangling))
}
