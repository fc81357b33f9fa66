package ull

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestDetectLanguage_Go(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	touch(t, dir, "go.sum")

	lang, found, err := DetectLanguage(dir)
	require.NoError(t, err)
	assert.Equal(t, LanguageGo, lang)
	assert.True(t, found["go.mod"])
	assert.True(t, found["go.sum"])
	assert.False(t, found["package.json"])
}

func TestDetectLanguage_Python(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "pyproject.toml")
	touch(t, dir, "requirements.txt")

	lang, _, err := DetectLanguage(dir)
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, lang)
}

func TestDetectLanguage_TieBreaksByScoreThenSortedKey(t *testing.T) {
	dir := t.TempDir()
	// One indicator each for Dart and Rust; Dart sorts before Rust, and both
	// score 1, so Dart should win the tie.
	touch(t, dir, "pubspec.yaml")
	touch(t, dir, "Cargo.toml")

	lang, _, err := DetectLanguage(dir)
	require.NoError(t, err)
	assert.Equal(t, LanguageDart, lang)
}

func TestDetectLanguage_HighestScoreWins(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Cargo.toml")
	touch(t, dir, "Cargo.lock")
	touch(t, dir, "pubspec.yaml")

	lang, _, err := DetectLanguage(dir)
	require.NoError(t, err)
	assert.Equal(t, LanguageRust, lang)
}

func TestDetectLanguage_NoIndicators(t *testing.T) {
	dir := t.TempDir()

	_, _, err := DetectLanguage(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to detect library language")
}

func TestDetectLanguage_MissingWorkspace(t *testing.T) {
	_, _, err := DetectLanguage(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestDetectLanguage_WorkspaceIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	touch(t, dir, "not-a-dir")

	_, _, err := DetectLanguage(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDedupe(t *testing.T) {
	out := dedupe([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}
