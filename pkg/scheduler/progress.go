package scheduler

// ProgressTracker stores the compliance-score history for one inner loop and
// answers whether the run has stagnated.
//
// ADC-IMPLEMENTS: <sequential-workflow-algorithm-01>
type ProgressTracker struct {
	scores []float64
}

// AddScore appends a compliance score to the history.
func (pt *ProgressTracker) AddScore(score float64) {
	pt.scores = append(pt.scores, score)
}

// Scores returns a copy of the recorded score history.
func (pt *ProgressTracker) Scores() []float64 {
	out := make([]float64, len(pt.scores))
	copy(out, pt.scores)
	return out
}

// IsStuck reports whether the last three recorded scores form a
// non-increasing sequence: sₙ ≤ sₙ₋₁ ≤ sₙ₋₂. Fewer than three scores can
// never be "stuck".
func (pt *ProgressTracker) IsStuck() bool {
	n := len(pt.scores)
	if n < 3 {
		return false
	}
	last, mid, first := pt.scores[n-1], pt.scores[n-2], pt.scores[n-3]
	return last <= mid && mid <= first
}
