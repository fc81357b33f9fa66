package adcmodel

import (
	"testing"

	"github.com/owlduet-labs/adc-engine/pkg/adcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState_NormalizesTask(t *testing.T) {
	rs := NewRunState(Task{Description: "x"})
	assert.Equal(t, DefaultMaxOuterIterations, rs.Task.MaxOuterIterations)
	assert.Empty(t, rs.PhaseHistory)
}

func TestRunState_RecordPhase_StampsCoordinates(t *testing.T) {
	rs := NewRunState(Task{})
	rs.OuterIteration = 2
	rs.InnerIteration = 4

	rs.RecordPhase("code_generator", "wrote 3 files", PhaseRecord{InputTokens: 100, OutputTokens: 50})

	require.Len(t, rs.PhaseHistory, 1)
	got := rs.PhaseHistory[0]
	assert.Equal(t, "code_generator", got.Agent)
	assert.Equal(t, "wrote 3 files", got.ResultSummary)
	assert.Equal(t, 2, got.OuterIteration)
	assert.Equal(t, 4, got.InnerIteration)
}

func TestRunState_TotalTokens_ExcludesCacheReads(t *testing.T) {
	rs := NewRunState(Task{})
	rs.RecordPhase("auditor", "", PhaseRecord{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 1000})
	rs.RecordPhase("evaluator", "", PhaseRecord{InputTokens: 5, OutputTokens: 5})

	assert.Equal(t, 40, rs.TotalTokens())
}

func TestRunState_TotalCost_SumsAcrossPhases(t *testing.T) {
	rs := NewRunState(Task{})
	rs.RecordPhase("auditor", "", PhaseRecord{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	rs.RecordPhase("evaluator", "", PhaseRecord{InputTokens: 1_000_000})

	want := SonnetPricing.InputPerMillion*2 + SonnetPricing.OutputPerMillion
	assert.InDelta(t, want, rs.TotalCost(SonnetPricing), 1e-9)
}

func TestRunResult_IsSuccess(t *testing.T) {
	assert.True(t, RunResult{Status: "success"}.IsSuccess())
	assert.False(t, RunResult{Status: "failed", Reason: adcerr.ReasonMaxOuterIterations}.IsSuccess())
}
