package train

import "math"

// speedEpsilon is the tolerance used when comparing two physical speeds
// for equality; scale speeds carry accumulated floating point error from
// repeated curve sampling, so exact equality is never the right test.
const speedEpsilon = 1e-9

func almostZero(v float64) bool { return math.Abs(v) < speedEpsilon }

// maxSpeedDiff is the maximum allowed spread, in scale m/s, between any
// two powered locomotives' sampled speed at a shared speed-table entry.
const maxSpeedDiff = 0.005

// Entry is one row of a SpeedTable: one throttle step per locomotive, and
// the resulting average physical speed across all of them.
type Entry struct {
	StepForLoco []uint8
	AvgSpeed    float64
}

// nullTableEntry is the index of the implicit stopped/zero entry, which
// is never stored in SpeedTable.entries.
const nullTableEntry = 0

// SpeedTable is a precomputed mapping from a single table index to a
// synchronized set of per-locomotive throttle steps, built once from the
// member locomotives' speed curves so that a multi-locomotive train can
// be driven by one throttle value without the locomotives drifting apart.
type SpeedTable struct {
	entries   []Entry
	locoCount int
}

// Count returns the number of non-null entries.
func (t *SpeedTable) Count() int { return len(t.entries) }

// EntryAt returns the entry at idx, where idx 0 is the implicit null
// (stopped) entry and entries are otherwise 1-indexed.
func (t *SpeedTable) EntryAt(idx int) Entry {
	if idx == nullTableEntry || idx < 1 || idx > len(t.entries) {
		return Entry{}
	}
	return t.entries[idx-1]
}

// GetClosestMatchBySpeed returns the highest entry whose average speed is
// <= speed (or an exact match), and its table index.
func (t *SpeedTable) GetClosestMatchBySpeed(speed float64) (Entry, int) {
	for i, entry := range t.entries {
		if almostZero(entry.AvgSpeed - speed) {
			return entry, i + 1
		}
		if entry.AvgSpeed > speed {
			if i > 0 {
				return t.entries[i-1], i
			}
			return Entry{}, nullTableEntry
		}
	}
	if len(t.entries) > 0 {
		return t.entries[len(t.entries)-1], len(t.entries)
	}
	return Entry{}, nullTableEntry
}

// GetClosestMatchByStep returns the entry whose step for locoIdx is
// closest to step, preferring the lower neighbor on a tie.
func (t *SpeedTable) GetClosestMatchByStep(locoIdx int, step uint8) (Entry, int) {
	if step == 0 {
		return Entry{}, nullTableEntry
	}
	if locoIdx < 0 || locoIdx >= t.locoCount {
		return Entry{}, nullTableEntry
	}

	for i, entry := range t.entries {
		candidateStep := entry.StepForLoco[locoIdx]
		if candidateStep == step {
			return entry, i + 1
		}

		if candidateStep > step {
			if i > 0 {
				prev := t.entries[i-1]
				if (step - prev.StepForLoco[locoIdx]) <= (candidateStep - step) {
					return prev, i
				}
				return entry, i + 1
			}
		}
	}

	if len(t.entries) > 0 {
		return t.entries[len(t.entries)-1], len(t.entries)
	}
	return Entry{}, nullTableEntry
}

type locoStepCache struct {
	currentStep     uint8
	minAcceptedStep uint8
	maxAcceptedStep uint8
	minSpeedSoFar   float64
	maxSpeedSoFar   float64
	currentSpeed    float64
}

// BuildSpeedTable derives a SpeedTable from the given powered locomotives'
// speed curves. A single locomotive gets a table that replicates its own
// curve 1:1; two or more locomotives are synchronized so that every stored
// entry keeps all of them within maxSpeedDiff of one another.
func BuildSpeedTable(curves []*SpeedCurve) *SpeedTable {
	numLocos := len(curves)
	if numLocos == 0 {
		return &SpeedTable{}
	}

	lastLoco := numLocos - 1
	table := &SpeedTable{locoCount: numLocos}

	if numLocos == 1 {
		curve := curves[0]
		entries := make([]Entry, 0, speedSteps)
		for step := 1; step <= speedSteps; step++ {
			entries = append(entries, Entry{
				StepForLoco: []uint8{uint8(step)},
				AvgSpeed:    curve.SpeedForStep(uint8(step)),
			})
		}
		table.entries = entries
		return table
	}

	maxTrainSpeed := curves[0].SpeedForStep(speedSteps)
	for locoIdx := 1; locoIdx < numLocos; locoIdx++ {
		if s := curves[locoIdx].SpeedForStep(speedSteps); s < maxTrainSpeed {
			maxTrainSpeed = s
		}
	}
	maxTrainSpeed += maxSpeedDiff

	stepCache := make([]locoStepCache, numLocos)

	var entries []Entry
	var diffVector []float64

	firstLocoMaxStep := curves[0].StepLowerBound(maxTrainSpeed)
	if firstLocoMaxStep == 0 {
		firstLocoMaxStep = speedSteps
	}

	currentLocoIdx := 0
	beginNewRound := true
	canCompareToLastInserted := false

	for stepCache[0].currentStep <= firstLocoMaxStep {
		mapping := curves[currentLocoIdx]
		item := &stepCache[currentLocoIdx]

		if currentLocoIdx == 0 {
			item.currentStep++
			item.currentSpeed = mapping.SpeedForStep(item.currentStep)

			minAcceptedSpeed := item.currentSpeed - maxSpeedDiff
			maxAcceptedSpeed := item.currentSpeed + maxSpeedDiff
			item.minSpeedSoFar = item.currentSpeed
			item.maxSpeedSoFar = item.currentSpeed

			for otherIdx := 1; otherIdx < numLocos; otherIdx++ {
				otherMapping := curves[otherIdx]
				otherItem := &stepCache[otherIdx]
				otherItem.minAcceptedStep = otherMapping.StepLowerBound(minAcceptedSpeed)
				otherItem.maxAcceptedStep = otherMapping.StepUpperBound(maxAcceptedSpeed)
				if otherItem.minAcceptedStep == 0 {
					otherItem.minAcceptedStep = speedSteps
				}
				if otherItem.maxAcceptedStep == 0 {
					otherItem.maxAcceptedStep = speedSteps
				}
			}

			currentLocoIdx++
			beginNewRound = true
			canCompareToLastInserted = false
			continue
		}

		prevItem := stepCache[currentLocoIdx-1]

		if beginNewRound {
			item.currentStep = item.minAcceptedStep
			beginNewRound = false
		} else {
			item.currentStep++
		}

		if item.currentStep > item.maxAcceptedStep {
			currentLocoIdx--
			continue
		}

		item.minSpeedSoFar = prevItem.minSpeedSoFar
		item.maxSpeedSoFar = prevItem.maxSpeedSoFar
		item.currentSpeed = mapping.SpeedForStep(item.currentStep)
		if item.currentSpeed < item.minSpeedSoFar {
			item.minSpeedSoFar = item.currentSpeed
		}
		if item.currentSpeed > item.maxSpeedSoFar {
			item.maxSpeedSoFar = item.currentSpeed
		}

		maxDiff := item.maxSpeedSoFar - item.minSpeedSoFar
		if maxDiff > maxSpeedDiff {
			continue
		}

		if currentLocoIdx < lastLoco {
			currentLocoIdx++
			beginNewRound = true
			continue
		}

		stepForLoco := make([]uint8, numLocos)
		speedSum := 0.0
		for locoIdx := 0; locoIdx < numLocos; locoIdx++ {
			stepForLoco[locoIdx] = stepCache[locoIdx].currentStep
			speedSum += stepCache[locoIdx].currentSpeed
		}
		avgSpeed := speedSum / float64(numLocos)

		if canCompareToLastInserted {
			if diffVector[len(diffVector)-1] > maxDiff {
				entries[len(entries)-1] = Entry{StepForLoco: stepForLoco, AvgSpeed: avgSpeed}
				diffVector[len(diffVector)-1] = maxDiff
			}
			continue
		}

		entries = append(entries, Entry{StepForLoco: stepForLoco, AvgSpeed: avgSpeed})
		diffVector = append(diffVector, maxDiff)
		canCompareToLastInserted = true
	}

	if len(entries) == 0 {
		return table
	}

	entries, diffVector = dedupSpeedTableEntries(entries, diffVector, numLocos)
	table.entries = entries
	return table
}

// dedupSpeedTableEntries removes, one locomotive at a time, every entry in
// a consecutive run that shares that locomotive's step but is not the run's
// smallest-spread (max-min) entry.
func dedupSpeedTableEntries(entries []Entry, diffVector []float64, numLocos int) ([]Entry, []float64) {
	eraseRange := func(a, b int) {
		entries = append(entries[:a], entries[b:]...)
		diffVector = append(diffVector[:a], diffVector[b:]...)
	}

	for locoIdx := 0; locoIdx < numLocos; locoIdx++ {
		firstEntry := entries[0]
		bestEntryDiff := diffVector[0]
		bestEntryIdx := 0
		firstTableIdx := 0
		currentStep := firstEntry.StepForLoco[locoIdx]

		tableIdx := 1
		for tableIdx < len(entries) {
			step := entries[tableIdx].StepForLoco[locoIdx]
			if step == currentStep {
				maxDiff := diffVector[tableIdx]
				if maxDiff < bestEntryDiff {
					bestEntryIdx = tableIdx
					bestEntryDiff = maxDiff
				}
				tableIdx++
				continue
			}

			if firstTableIdx < bestEntryIdx {
				eraseRange(firstTableIdx, bestEntryIdx)
			}

			idxShift := bestEntryIdx - firstTableIdx
			bestEntryIdx = firstTableIdx
			tableIdx -= idxShift

			firstToErase := bestEntryIdx + 1
			if firstToErase < tableIdx {
				eraseRange(firstToErase, tableIdx)
			}

			tableIdx = bestEntryIdx + 1
			firstTableIdx = tableIdx
			bestEntryIdx = firstTableIdx
			currentStep = step
			bestEntryDiff = diffVector[tableIdx]
		}

		if firstTableIdx < len(entries)-1 {
			if firstTableIdx < bestEntryIdx {
				eraseRange(firstTableIdx, bestEntryIdx)
			}

			bestEntryIdx = firstTableIdx

			firstToErase := bestEntryIdx + 1
			eraseRange(firstToErase, len(entries))
		}
	}

	return entries, diffVector
}
