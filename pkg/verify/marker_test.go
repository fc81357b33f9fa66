package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCoverage_AllPresent(t *testing.T) {
	covered, missing := VerifyCoverage(
		[]string{"feature-01", "feature-02"},
		map[string]bool{"feature-01": true, "feature-02": true},
	)
	assert.Equal(t, []string{"feature-01", "feature-02"}, covered)
	assert.Empty(t, missing)
}

func TestVerifyCoverage_SomeMissing(t *testing.T) {
	covered, missing := VerifyCoverage(
		[]string{"feature-01", "feature-02"},
		map[string]bool{"feature-01": true},
	)
	assert.Equal(t, []string{"feature-01"}, covered)
	assert.Equal(t, []string{"feature-02"}, missing)
}

func TestVerifyCoverage_EveryIDInExactlyOneSide(t *testing.T) {
	required := []string{"a", "b", "c", "d"}
	covered, missing := VerifyCoverage(required, map[string]bool{"b": true, "d": true})

	assert.Len(t, covered, 2)
	assert.Len(t, missing, 2)
	for _, id := range covered {
		assert.NotContains(t, missing, id)
	}
	assert.ElementsMatch(t, required, append(append([]string{}, covered...), missing...))
}

func TestMarkerScanner_FindWithWalk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "orders.go"),
		[]byte("// ADC-IMPLEMENTS: <order-pricing-feature-01>\nfunc CalculateTotal() {}\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "discounts.go"),
		[]byte("// ADC-IMPLEMENTS: <order-pricing-feature-02>\nfunc ApplyDiscount() {}\n"),
		0o644,
	))

	scanner := NewMarkerScanner("*.go")
	found, err := scanner.findWithWalk(dir)
	require.NoError(t, err)
	assert.True(t, found["order-pricing-feature-01"])
	assert.True(t, found["order-pricing-feature-02"])
	assert.Len(t, found, 2)
}

func TestMarkerScanner_FindWithWalk_GlobFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "notes.md"),
		[]byte("ADC-IMPLEMENTS: <should-not-count>\n"),
		0o644,
	))

	scanner := NewMarkerScanner("*.go")
	found, err := scanner.findWithWalk(dir)
	require.NoError(t, err)
	assert.Empty(t, found)
}
