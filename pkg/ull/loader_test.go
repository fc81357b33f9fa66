package ull

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_GoWorkspaceUsesDirectBridge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/fixture\n\ngo 1.22\n")
	writeFile(t, filepath.Join(dir, "lib.go"), `package fixture

// Greet returns a greeting.
func Greet(name string) string { return "hello " + name }
`)

	b, meta, err := Load(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, BridgeDirect, meta.BridgeType)
	assert.Equal(t, LanguageGo, meta.DetectedLanguage)
	assert.True(t, meta.SupportsSignatureVerification)
	assert.True(t, b.HasFunction("Greet"))
	assert.False(t, b.HasFunction("DoesNotExist"))
}

func TestLoad_GoWorkspaceWithNestedPackageDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/fixture\n\ngo 1.22\n")
	writeFile(t, filepath.Join(dir, "pkg", "fixture", "lib.go"), `package fixture

func Add(a, b int) int { return a + b }
`)

	b, meta, err := Load(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, BridgeDirect, meta.BridgeType)
	assert.True(t, b.HasFunction("Add"))
}

func TestLoad_FallsBackToCLIWhenNoDirectOrRPC(t *testing.T) {
	dir := t.TempDir()
	// No go.mod, no RPC entry points: only a non-Go language indicator so
	// DetectLanguage still succeeds (Python pyproject.toml) but neither the
	// direct nor RPC bridge applies.
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"fixture\"\n")
	exePath := filepath.Join(dir, "bin", "fixture")
	writeFile(t, exePath, "#!/bin/sh\necho ok\n")
	require.NoError(t, os.Chmod(exePath, 0o755))

	b, meta, err := Load(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, BridgeCLI, meta.BridgeType)
	assert.Equal(t, LanguagePython, meta.DetectedLanguage)
}

func TestLoad_StrictModeRefusesCLIFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"fixture\"\n")

	_, _, err := Load(context.Background(), dir, Options{Strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict mode forbids CLI fallback")
}

func TestLoad_UndetectableLanguagePropagatesError(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Load(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to detect library language")
}

func TestLoad_ExpectedLanguageSkipsDetection(t *testing.T) {
	dir := t.TempDir()
	// No indicator files at all: detection would fail, but the caller
	// asserts the language up front.
	exePath := filepath.Join(dir, "bin", "fixture")
	writeFile(t, exePath, "#!/bin/sh\necho ok\n")
	require.NoError(t, os.Chmod(exePath, 0o755))

	b, meta, err := Load(context.Background(), dir, Options{ExpectedLanguage: LanguageRust})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, LanguageRust, meta.DetectedLanguage)
	assert.Equal(t, BridgeCLI, meta.BridgeType)
}
