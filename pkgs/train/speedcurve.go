// Package train implements rail vehicles, trains, speed tables and
// throttles: the coordinator layer that sits between the object model and
// a loconet.Kernel (or any other decoder.Controller-compatible backend).
package train

import "sort"

// speedSteps is the number of discrete throttle steps a speed curve maps,
// matching the 126-step LocoNet/DCC speed range.
const speedSteps = 126

// SpeedCurve maps a speed step in [1,126] to a physical speed (in scale
// m/s). It must be non-decreasing; callers populate it with SetValues or
// FromSpeedMapping before using it in a SpeedTable.
type SpeedCurve struct {
	values [speedSteps]float64
	valid  bool
}

// Valid reports whether the curve has been populated.
func (c *SpeedCurve) Valid() bool { return c.valid }

// SpeedForStep returns the physical speed for step, or 0 if step is out of
// [1,126].
func (c *SpeedCurve) SpeedForStep(step uint8) float64 {
	if step == 0 || step > speedSteps {
		return 0
	}
	return c.values[step-1]
}

// StepLowerBound returns the smallest step whose speed is >= speed, or 0
// if every sample is below speed.
func (c *SpeedCurve) StepLowerBound(speed float64) uint8 {
	idx := sort.Search(speedSteps, func(i int) bool { return c.values[i] >= speed })
	if idx == speedSteps {
		return 0
	}
	return uint8(idx + 1)
}

// StepUpperBound returns the smallest step whose speed is > speed, or 0
// if every sample is at or below speed.
func (c *SpeedCurve) StepUpperBound(speed float64) uint8 {
	idx := sort.Search(speedSteps, func(i int) bool { return c.values[i] > speed })
	if idx == speedSteps {
		return 0
	}
	return uint8(idx + 1)
}

// SetValues loads the curve from 126 explicit samples.
func (c *SpeedCurve) SetValues(values [speedSteps]float64) {
	c.values = values
	c.valid = true
}

// SpeedMappingPoint is one hand-entered (step, speed) anchor; FromSpeedMapping
// linearly interpolates the steps in between, mirroring how the original
// vehicle speed-curve editor turns a handful of calibration points into a
// dense 126-sample curve.
type SpeedMappingPoint struct {
	Step  uint8
	Speed float64
}

// FromSpeedMapping builds the curve from a sparse set of calibration
// points, linearly interpolating the steps between consecutive points.
// Points with Step == 0 are ignored. Points must be given in increasing
// step order.
func (c *SpeedCurve) FromSpeedMapping(points []SpeedMappingPoint) {
	var lastStep uint8
	var lastSpeed float64

	for _, p := range points {
		if p.Step == 0 {
			continue
		}

		if p.Step > lastStep+1 {
			numSteps := int(p.Step - lastStep)
			increment := (p.Speed - lastSpeed) / float64(numSteps)
			for i := 1; i < numSteps; i++ {
				calculatedSpeed := lastSpeed + increment*float64(i)
				calculatedStep := lastStep + uint8(i)
				if calculatedStep >= 1 && calculatedStep <= speedSteps {
					c.values[calculatedStep-1] = calculatedSpeed
				}
			}
		}

		lastStep = p.Step
		lastSpeed = p.Speed

		if p.Step >= 1 && p.Step <= speedSteps {
			c.values[p.Step-1] = p.Speed
		}
	}

	c.valid = true
}
