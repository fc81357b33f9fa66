package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraduatedTarget_Values(t *testing.T) {
	assert.Equal(t, 0.60, GraduatedTarget(1))
	assert.Equal(t, 0.60, GraduatedTarget(3))
	assert.Equal(t, 0.70, GraduatedTarget(4))
	assert.Equal(t, 0.70, GraduatedTarget(6))
	assert.Equal(t, 0.85, GraduatedTarget(7))
	assert.Equal(t, 0.85, GraduatedTarget(100))
}

func TestGraduatedTarget_NonDecreasing(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 20; i++ {
		target := GraduatedTarget(i)
		assert.GreaterOrEqual(t, target, prev, "target decreased at iteration %d", i)
		assert.Contains(t, []float64{0.60, 0.70, 0.85}, target)
		prev = target
	}
}

func TestThresholds_TargetHonorsOverrides(t *testing.T) {
	custom := Thresholds{Early: 0.5, Mid: 0.65, Late: 0.9, SuccessFloor: 0.75}
	assert.Equal(t, 0.5, custom.Target(2))
	assert.Equal(t, 0.65, custom.Target(5))
	assert.Equal(t, 0.9, custom.Target(9))
}
