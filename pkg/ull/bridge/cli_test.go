package bridge

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, path, script string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fixture scripts in this file assume a POSIX shell")
	}
}

func TestNewCLIBridge_FindsExecutableInSearchDirs(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	exe := filepath.Join(dir, "bin", "fixture")
	writeScript(t, exe, "#!/bin/sh\necho \"$@\"\n")

	b, err := NewCLIBridge(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, exe, b.executable)
}

func TestNewCLIBridge_NoExecutableIsError(t *testing.T) {
	dir := t.TempDir()

	_, err := NewCLIBridge(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CLI executable found")
	for _, sub := range []string{"bin", "build", filepath.Join("target", "release"), filepath.Join("target", "debug"), "dist"} {
		assert.Contains(t, err.Error(), filepath.Join(dir, sub))
	}
}

func TestNewCLIBridge_IgnoresSharedLibraries(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "bin", "lib.so"), "not an executable script")

	_, err := NewCLIBridge(dir)
	require.Error(t, err)
}

func TestCLIBridge_Invoke(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	exe := filepath.Join(dir, "bin", "fixture")
	writeScript(t, exe, "#!/bin/sh\necho \"invoked: $@\"\n")

	b, err := NewCLIBridge(dir)
	require.NoError(t, err)
	defer b.Close()

	out, err := b.Invoke(context.Background(), "greet", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "invoked: greet --name world")
}

func TestCLIBridge_VerifyCommandsExist(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	exe := filepath.Join(dir, "bin", "fixture")
	writeScript(t, exe, `#!/bin/sh
case "$1" in
  known) echo "usage: fixture known"; exit 0 ;;
  *) exit 1 ;;
esac
`)

	b, err := NewCLIBridge(dir)
	require.NoError(t, err)
	defer b.Close()

	results := b.VerifyCommandsExist(context.Background(), []string{"known", "unknown"})
	assert.True(t, results["known"])
	assert.False(t, results["unknown"])
}

func TestCLIBridge_FunctionNamesAndHasFunctionAreLimited(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	exe := filepath.Join(dir, "bin", "fixture")
	writeScript(t, exe, "#!/bin/sh\necho usage\n")

	b, err := NewCLIBridge(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.FunctionNames())
	assert.True(t, b.HasFunction("anything"), "the fixture script always prints usage, so existence checks succeed")
}
