package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_IsStuck(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		stuck  bool
	}{
		{"empty history", nil, false},
		{"two scores never stuck", []float64{0.5, 0.4}, false},
		{"strictly decreasing", []float64{0.5, 0.4, 0.3}, true},
		{"flat triple", []float64{0.3, 0.3, 0.3}, true},
		{"flat triple above target", []float64{0.9, 0.9, 0.9}, true},
		{"increasing", []float64{0.3, 0.4, 0.5}, false},
		{"recovered after dip", []float64{0.5, 0.3, 0.4}, false},
		{"only last three matter", []float64{0.1, 0.9, 0.5, 0.5, 0.4}, true},
		{"late improvement clears it", []float64{0.5, 0.5, 0.5, 0.6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := &ProgressTracker{}
			for _, s := range tt.scores {
				pt.AddScore(s)
			}
			assert.Equal(t, tt.stuck, pt.IsStuck())
		})
	}
}

func TestProgressTracker_ScoresReturnsCopy(t *testing.T) {
	pt := &ProgressTracker{}
	pt.AddScore(0.4)
	pt.AddScore(0.6)

	scores := pt.Scores()
	scores[0] = 0.99

	assert.Equal(t, []float64{0.4, 0.6}, pt.Scores())
}
