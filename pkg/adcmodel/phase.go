package adcmodel

import "time"

// PhaseRecord is one LLM invocation's accounting slot. Immutable once
// appended to a RunState's history.
type PhaseRecord struct {
	// Agent is the agent identity that ran (e.g. "auditor", "code_generator").
	Agent string

	// Timestamp is when the phase executed.
	Timestamp time.Time

	// OuterIteration and InnerIteration are the loop coordinates this phase
	// executed under.
	OuterIteration int
	InnerIteration int

	// ResultSummary is a compact, human-readable summary of the phase's
	// outcome, e.g. "Compliance: 72.0%".
	ResultSummary string

	// InputTokens, OutputTokens, CacheCreationTokens, and CacheReadTokens are
	// the four token counters. TokensUsed (input + output, excluding cache
	// reads) is derived, not stored independently, so it can never drift
	// from its components.
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// TokensUsed returns input + output tokens, excluding cache reads, matching
// the invariant P.tokens_used == P.input_tokens + P.output_tokens.
func (p PhaseRecord) TokensUsed() int {
	return p.InputTokens + p.OutputTokens
}

// ModelPricing names the per-million-token rates used by RunState.TotalCost.
// Callers supply the pricing for whatever model tier produced a set of
// phases; TotalCost applies no default.
type ModelPricing struct {
	InputPerMillion         float64
	OutputPerMillion        float64
	CacheCreationPerMillion float64
	CacheReadPerMillion     float64
}

// SonnetPricing holds Claude Sonnet 4.5-class rates, for callers to pass to
// RunState.TotalCost.
var SonnetPricing = ModelPricing{
	InputPerMillion:         3.00,
	OutputPerMillion:        15.00,
	CacheCreationPerMillion: 3.75,
	CacheReadPerMillion:     0.30,
}

// Cost computes the dollar cost of a single phase under the given pricing.
func (p PhaseRecord) Cost(pricing ModelPricing) float64 {
	cost := float64(p.InputTokens) / 1_000_000 * pricing.InputPerMillion
	cost += float64(p.OutputTokens) / 1_000_000 * pricing.OutputPerMillion
	cost += float64(p.CacheCreationTokens) / 1_000_000 * pricing.CacheCreationPerMillion
	cost += float64(p.CacheReadTokens) / 1_000_000 * pricing.CacheReadPerMillion
	return cost
}
