package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedForStepOutOfRange(t *testing.T) {
	c := &SpeedCurve{}
	assert.Equal(t, 0.0, c.SpeedForStep(0))
	assert.Equal(t, 0.0, c.SpeedForStep(127))
}

func TestSpeedCurveFromSpeedMappingInterpolates(t *testing.T) {
	c := &SpeedCurve{}
	c.FromSpeedMapping([]SpeedMappingPoint{
		{Step: 1, Speed: 0},
		{Step: 126, Speed: 12.6},
	})

	assert.True(t, c.Valid())
	assert.InDelta(t, 0.0, c.SpeedForStep(1), 1e-9)
	assert.InDelta(t, 12.6, c.SpeedForStep(126), 1e-9)
	assert.InDelta(t, 6.3, c.SpeedForStep(63), 0.15)
}

func TestStepLowerUpperBound(t *testing.T) {
	c := &SpeedCurve{}
	var values [speedSteps]float64
	for i := range values {
		values[i] = float64(i+1) * 0.1
	}
	c.SetValues(values)

	assert.Equal(t, uint8(50), c.StepLowerBound(5.0))
	assert.Equal(t, uint8(51), c.StepUpperBound(5.0))
	assert.Equal(t, uint8(0), c.StepLowerBound(1000))
}
