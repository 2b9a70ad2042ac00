package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

// writeConfig writes a config file with the given catalog section.
func writeConfig(t *testing.T, catalog string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "logging:\n  level: ERROR\n" + catalog
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func memoryConfig(t *testing.T, dir string) string {
	return writeConfig(t, fmt.Sprintf(`catalog:
  type: memory
  local_hostname: alpha
  memory:
    locations:
      - group: Default
        host: alpha
        directory: %s
`, dir))
}

func TestRun_Usage(t *testing.T) {
	_, err := runCLI(t)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = runCLI(t, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Equal(t, 2, exitCode(err))

	_, err = runCLI(t, "cat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: mythfs cat")

	_, err = runCLI(t, "--help")
	assert.NoError(t, err)

	_, err = runCLI(t, "cat", "--help")
	assert.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"usage", usagef("bad"), 2},
		{"invalid argument", fserrors.New(fserrors.InvalidArgument, "parse uri", "bad"), 2},
		{"configuration", fmt.Errorf("open: %w", fserrors.New(fserrors.ConfigurationError, "resolve host", "no mapping")), 3},
		{"not found", fserrors.New(fserrors.NotFound, "rm", "gone"), 4},
		{"overwrite", fserrors.New(fserrors.OverwriteConflict, "write", "exists"), 4},
		{"other", fserrors.New(fserrors.ProtocolError, "read", "bad reply"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mythfs.yaml")

	out, err := runCLI(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = runCLI(t, "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}

func TestFormat(t *testing.T) {
	out, err := runCLI(t, "format",
		"--title", "News/Weather",
		"--start", "2024-03-05 20:30",
		"--chanid", "1001",
		"--basename", "1001_20240305203000.ts",
		"%T %c %Y%m%d-%H%i")
	require.NoError(t, err)
	assert.Equal(t, "News-Weather 1001 20240305-2030.ts\n", out)

	out, err = runCLI(t, "format", "--title", "What?", "--replace", "_", "%T")
	require.NoError(t, err)
	assert.Equal(t, "What_\n", out)

	_, err = runCLI(t, "format", "--start", "yesterday", "%T")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestCatalogBadger(t *testing.T) {
	cfg := writeConfig(t, fmt.Sprintf(`catalog:
  type: badger
  local_hostname: alpha
  badger:
    db_path: %s
`, filepath.Join(t.TempDir(), "catalog")))

	id, err := runCLI(t, "--config", cfg, "catalog", "add", "Videos", "beta", "/srv/videos")
	require.NoError(t, err)
	id = strings.TrimSpace(id)
	require.NotEmpty(t, id)

	_, err = runCLI(t, "--config", cfg, "catalog", "set-ip", "beta", "10.0.0.2")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "/srv/videos")

	out, err = runCLI(t, "--config", cfg, "catalog", "list", "--group", "Default")
	require.NoError(t, err)
	assert.NotContains(t, out, "/srv/videos")

	_, err = runCLI(t, "--config", cfg, "catalog", "remove", id)
	require.NoError(t, err)

	out, err = runCLI(t, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	_, err = runCLI(t, "--config", cfg, "catalog", "rename")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestLocalFileCommands(t *testing.T) {
	dir := t.TempDir()
	content := []byte("recording data")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shows"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shows", "a.mpg"), content, 0644))
	cfg := memoryConfig(t, dir)

	t.Run("cat", func(t *testing.T) {
		out, err := runCLI(t, "--config", cfg, "cat", "myth://Default@alpha/shows/a.mpg")
		require.NoError(t, err)
		assert.Equal(t, string(content), out)
	})

	t.Run("cat with offset", func(t *testing.T) {
		out, err := runCLI(t, "--config", cfg, "cat", "--offset", "10", "myth://alpha/shows/a.mpg")
		require.NoError(t, err)
		assert.Equal(t, "data", out)
	})

	t.Run("cat with watch", func(t *testing.T) {
		out, err := runCLI(t, "--config", cfg, "cat", "--chanid", "1001", "--starttime", "2024-03-05 20:30", "myth://alpha/shows/a.mpg")
		require.NoError(t, err)
		assert.Equal(t, string(content), out)
	})

	t.Run("get", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "copy.mpg")
		_, err := runCLI(t, "--config", cfg, "get", "myth://alpha/shows/a.mpg", dest)
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("locate", func(t *testing.T) {
		out, err := runCLI(t, "--config", cfg, "locate", "myth://alpha/shows/a.mpg")
		require.NoError(t, err)
		assert.Equal(t, "local\tDefault\t"+filepath.Join(dir, "shows", "a.mpg")+"\n", out)
	})

	t.Run("groups", func(t *testing.T) {
		out, err := runCLI(t, "--config", cfg, "groups")
		require.NoError(t, err)
		assert.Contains(t, out, "GROUP")
		assert.Contains(t, out, dir)
		assert.Contains(t, out, "true")
	})

	t.Run("invalid uri", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfg, "cat", "http://alpha/shows/a.mpg")
		require.Error(t, err)
		assert.ErrorIs(t, err, fserrors.ErrInvalidArgument)
	})
}

func TestWatchFlags(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		flags := newFlagSet("cat")
		watch := watchFlags(flags)
		require.NoError(t, flags.Parse([]string{"myth://alpha/a.mpg"}))

		w, err := watch()
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("both set", func(t *testing.T) {
		flags := newFlagSet("cat")
		watch := watchFlags(flags)
		require.NoError(t, flags.Parse([]string{"--chanid", "1001", "--starttime", "2024-03-05 20:30", "myth://alpha/a.mpg"}))

		w, err := watch()
		require.NoError(t, err)
		assert.Equal(t, &transfer.GrowingFileWatch{
			ChanID:    1001,
			StartTime: time.Date(2024, 3, 5, 20, 30, 0, 0, time.Local),
		}, w)
	})

	tests := []struct {
		name string
		args []string
	}{
		{"chanid alone", []string{"cat", "--chanid", "1001", "myth://alpha/a.mpg"}},
		{"starttime alone", []string{"get", "--starttime", "2024-03-05 20:30", "myth://alpha/a.mpg"}},
		{"bad starttime", []string{"cat", "--chanid", "1001", "--starttime", "tonight", "myth://alpha/a.mpg"}},
		{"zero chanid", []string{"get", "--chanid", "0", "--starttime", "2024-03-05", "myth://alpha/a.mpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Rejected before any config is loaded
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, 2, exitCode(err))
		})
	}
}
