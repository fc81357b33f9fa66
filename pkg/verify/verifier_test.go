package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlduet-labs/adc-engine/pkg/ull"
)

type stubBridge struct {
	functions map[string]bool
}

func (s *stubBridge) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	return nil, nil
}
func (s *stubBridge) HasFunction(method string) bool { return s.functions[method] }
func (s *stubBridge) FunctionNames() []string {
	out := make([]string, 0, len(s.functions))
	for name := range s.functions {
		out = append(out, name)
	}
	return out
}
func (s *stubBridge) Close() error { return nil }

func TestVerifyCompliance_FullyCompliant(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "orders.go"),
		[]byte("// ADC-IMPLEMENTS: <order-pricing-feature-01>\nfunc CalculateTotal() {}\n"),
		0o644,
	))

	expected := ExpectedInterface{
		ContractID: "order-pricing",
		BlockIDs:   []string{"order-pricing-feature-01"},
		Functions:  []ExpectedFunction{{Name: "CalculateTotal"}},
	}
	b := &stubBridge{functions: map[string]bool{"CalculateTotal": true}}
	meta := ull.Metadata{BridgeType: ull.BridgeCLI}

	report, err := VerifyCompliance(context.Background(), expected, b, meta, NewMarkerScanner("*.go"), dir)
	require.NoError(t, err)

	assert.True(t, report.IsCompliant)
	assert.Equal(t, 1.0, report.ComplianceScore)
	assert.Equal(t, LevelLimited, report.Level)
	assert.Empty(t, report.MissingFunctions)
	assert.Equal(t, []string{"order-pricing-feature-01"}, report.FoundMarkers)
	assert.Empty(t, report.MissingMarkers)
}

func TestVerifyCompliance_MarkerCoverageAcrossLanguages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "pricing.py"),
		[]byte("# ADC-IMPLEMENTS: <alpha>\ndef calculate_total():\n    pass\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "pricing.go"),
		[]byte("// ADC-IMPLEMENTS: <beta>\nfunc CalculateTotal() {}\n"),
		0o644,
	))

	expected := ExpectedInterface{
		ContractID: "pricing",
		BlockIDs:   []string{"alpha", "beta", "gamma"},
	}
	b := &stubBridge{functions: map[string]bool{}}
	meta := ull.Metadata{BridgeType: ull.BridgeRPC}

	report, err := VerifyCompliance(context.Background(), expected, b, meta, NewMarkerScanner(), dir)
	require.NoError(t, err)

	assert.False(t, report.IsCompliant)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, report.FoundMarkers)
	assert.Equal(t, []string{"gamma"}, report.MissingMarkers)
	assert.Equal(t, LevelMarkerOnly, report.Level)
}

func TestVerifyCompliance_MissingFunctionAndMarker(t *testing.T) {
	dir := t.TempDir()

	expected := ExpectedInterface{
		ContractID: "order-pricing",
		BlockIDs:   []string{"order-pricing-feature-01"},
		Functions:  []ExpectedFunction{{Name: "CalculateTotal"}},
	}
	b := &stubBridge{functions: map[string]bool{}}
	meta := ull.Metadata{BridgeType: ull.BridgeCLI}

	report, err := VerifyCompliance(context.Background(), expected, b, meta, NewMarkerScanner("*.go"), dir)
	require.NoError(t, err)

	assert.False(t, report.IsCompliant)
	assert.Equal(t, 0.0, report.ComplianceScore)
	assert.Equal(t, []string{"CalculateTotal"}, report.MissingFunctions)
	assert.Empty(t, report.FoundMarkers)
	assert.Equal(t, []string{"order-pricing-feature-01"}, report.MissingMarkers)
}
