package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSpeedTableSingleLocoReplicatesCurve(t *testing.T) {
	c := linearCurve(10)
	table := BuildSpeedTable([]*SpeedCurve{c})

	assert.Equal(t, speedSteps, table.Count())
	entry := table.EntryAt(1)
	assert.Equal(t, []uint8{1}, entry.StepForLoco)
	assert.InDelta(t, c.SpeedForStep(1), entry.AvgSpeed, 1e-9)
}

func TestBuildSpeedTableEmpty(t *testing.T) {
	table := BuildSpeedTable(nil)
	assert.Equal(t, 0, table.Count())
}

func TestBuildSpeedTableTwoIdenticalLocos(t *testing.T) {
	a := linearCurve(10)
	b := linearCurve(10)
	table := BuildSpeedTable([]*SpeedCurve{a, b})

	assert.Greater(t, table.Count(), 0)
	for i := 1; i <= table.Count(); i++ {
		entry := table.EntryAt(i)
		assert.Len(t, entry.StepForLoco, 2)
		diff := a.SpeedForStep(entry.StepForLoco[0]) - b.SpeedForStep(entry.StepForLoco[1])
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, maxSpeedDiff+1e-9)
	}
}

func TestGetClosestMatchBySpeed(t *testing.T) {
	c := linearCurve(12.6)
	table := BuildSpeedTable([]*SpeedCurve{c})

	entry, idx := table.GetClosestMatchBySpeed(c.SpeedForStep(50))
	assert.Equal(t, 50, idx)
	assert.InDelta(t, c.SpeedForStep(50), entry.AvgSpeed, 1e-9)

	_, idx = table.GetClosestMatchBySpeed(-1)
	assert.Equal(t, nullTableEntry, idx)
}

func TestGetClosestMatchByStep(t *testing.T) {
	c := linearCurve(12.6)
	table := BuildSpeedTable([]*SpeedCurve{c})

	entry, idx := table.GetClosestMatchByStep(0, 50)
	assert.Equal(t, 50, idx)
	assert.Equal(t, uint8(50), entry.StepForLoco[0])

	_, idx = table.GetClosestMatchByStep(0, 0)
	assert.Equal(t, nullTableEntry, idx)
}
