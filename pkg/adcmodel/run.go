package adcmodel

import (
	"time"

	"github.com/owlduet-labs/adc-engine/pkg/adcerr"
)

// EvaluatorVerdict is the system-evaluator's latest verdict: whether it is
// satisfied with the current implementation, plus its feedback text.
type EvaluatorVerdict struct {
	Satisfied bool
	Feedback  string
}

// RunState is the moving head of a run. Created at run start, mutated only
// by the Scheduler, read by callers to compute cost and inspect progress.
type RunState struct {
	Task Task

	OuterIteration int
	InnerIteration int

	ComplianceScore      float64
	ImplementationIssues []string

	Evaluator EvaluatorVerdict

	// PhaseHistory is append-only; replaying it reproduces token totals.
	PhaseHistory []PhaseRecord
}

// NewRunState creates the initial state for a normalized task.
func NewRunState(task Task) *RunState {
	return &RunState{Task: task.Normalize()}
}

// RecordPhase appends a PhaseRecord built from the given fields, stamping it
// with the current time and the run's outer/inner coordinates.
func (rs *RunState) RecordPhase(agent string, summary string, counters PhaseRecord) {
	counters.Agent = agent
	counters.ResultSummary = summary
	counters.OuterIteration = rs.OuterIteration
	counters.InnerIteration = rs.InnerIteration
	if counters.Timestamp.IsZero() {
		counters.Timestamp = time.Now()
	}
	rs.PhaseHistory = append(rs.PhaseHistory, counters)
}

// TotalTokens sums TokensUsed() across every recorded phase (cache reads
// excluded, matching PhaseRecord.TokensUsed).
func (rs *RunState) TotalTokens() int {
	total := 0
	for _, p := range rs.PhaseHistory {
		total += p.TokensUsed()
	}
	return total
}

// TotalCost sums the dollar cost of every recorded phase under the given
// pricing.
func (rs *RunState) TotalCost(pricing ModelPricing) float64 {
	total := 0.0
	for _, p := range rs.PhaseHistory {
		total += p.Cost(pricing)
	}
	return total
}

// RunResult is the terminal, structured outcome of a run. The Scheduler
// never raises exceptions to its caller; every terminal state becomes one of
// these.
type RunResult struct {
	Status     string // "success" or "failed"
	Reason     adcerr.Reason
	FinalState *RunState
	PRURL      string
}

// IsSuccess reports whether the run ended successfully.
func (r RunResult) IsSuccess() bool {
	return r.Status == "success"
}
