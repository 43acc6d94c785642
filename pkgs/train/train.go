package train

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/keskad/traintastic-go/pkgs/decoder"
)

// Errors returned by Train operations, exposed to the object-model layer
// as typed result codes rather than thrown across package boundaries.
var (
	ErrAlreadyAcquired                  = errors.New("train: already acquired by another throttle")
	ErrCanNotActivateTrain              = errors.New("train: one or more vehicles are assigned to another train")
	ErrTrainMustBeStoppedToChangeDirection = errors.New("train: must be stopped to change direction")
	ErrVehicleNotAssignedToATrain       = errors.New("train: vehicle is not part of this train")
)

// decoderThrottleHoldDelay is how long the coordinator waits before
// committing a handheld-originated throttle change that would otherwise
// round back to the currently held table entry, giving the user time to
// turn the knob further. Grounded on train.cpp's 700ms delayed-speed-apply
// timer.
const decoderThrottleHoldDelay = 700 * time.Millisecond

// decoderThrottleHoldStepThreshold is the step delta above which a
// handheld change is trusted immediately instead of held.
const decoderThrottleHoldStepThreshold = 3

// SpeedPoint pairs a speed-table index with the physical speed (scale m/s)
// it represents; index 0 is always the stopped state.
type SpeedPoint struct {
	TableIdx int
	SpeedMPS float64
}

// SpeedState is the acceleration/braking ramp's current phase.
type SpeedState int

const (
	SpeedIdle SpeedState = iota
	SpeedAccelerating
	SpeedBraking
)

// Train is an ordered sequence of rail vehicles driven by a single
// throttle through a shared SpeedTable.
type Train struct {
	mu sync.Mutex

	// ScaleRatio converts scale m/s to real m/s (e.g. 1/87 for H0).
	ScaleRatio float64

	// AccelerationRate and BrakingRate are in scale m/s^2; BrakingRate is
	// stored as a positive magnitude applied against the current speed.
	AccelerationRate float64
	BrakingRate      float64

	// OnSpeedChanged, if set, is invoked whenever lastSetSpeedPoint
	// commits a new entry (ramp tick or direct set).
	OnSpeedChanged func(SpeedPoint)

	vehicles      []*RailVehicle
	active        bool
	direction     decoder.Direction
	emergencyStop bool

	// blockCount is how many block occupancy entries (pkgs/block's
	// TrainBlockStatus) currently reference this train; release() only
	// deactivates a stopped train once this reaches zero.
	blockCount int

	// mute, noSmoke and speedLimit are the effective zone policy, recomputed
	// by pkgs/block as an OR/OR/min over every zone the train currently
	// occupies and pushed down to every vehicle.
	mute       bool
	noSmoke    bool
	speedLimit float64

	throttle *Throttle

	speedTable          *SpeedTable
	speedTableStale     bool
	maxSpeedPoint       SpeedPoint
	lastSetSpeedPoint   SpeedPoint
	throttleSpeedPoint  SpeedPoint
	speedState          SpeedState
	rampTimer           *time.Timer

	delayTimer *time.Timer
}

// New creates an inactive, stopped train.
func New(scaleRatio float64) *Train {
	return &Train{ScaleRatio: scaleRatio, direction: decoder.DirectionForward, speedLimit: math.Inf(1)}
}

// ZonePolicy is the bulk policy a zone (pkgs/block) imposes on every train
// occupying one of its blocks.
type ZonePolicy struct {
	Mute       bool
	NoSmoke    bool
	SpeedLimit float64
}

// ApplyZonePolicy sets the train's effective zone policy, recomputed by
// pkgs/block as the OR/OR/min across every zone the train currently
// occupies, and pushes Mute/NoSmoke down to every vehicle.
func (t *Train) ApplyZonePolicy(p ZonePolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mute = p.Mute
	t.noSmoke = p.NoSmoke
	t.speedLimit = p.SpeedLimit
	for _, v := range t.vehicles {
		v.Mute = p.Mute
		v.NoSmoke = p.NoSmoke
	}
}

// Mute reports the train's current effective zone-muted state.
func (t *Train) Mute() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mute
}

// NoSmoke reports the train's current effective zone no-smoke state.
func (t *Train) NoSmoke() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.noSmoke
}

// SpeedLimit reports the train's current effective zone speed limit, or
// +Inf if unrestricted.
func (t *Train) SpeedLimit() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speedLimit
}

// EnterBlock marks the train active as it gains an occupancy entry in a
// block (pkgs/block.Block.AssignTrain); mirrors Acquire's activation but is
// driven by block assignment rather than throttle acquisition.
func (t *Train) EnterBlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blockCount++
	t.active = true
}

// LeaveBlock drops one block occupancy entry; the train deactivates once it
// holds no throttle, is stopped, and is in no block.
func (t *Train) LeaveBlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.blockCount > 0 {
		t.blockCount--
	}
	t.deactivateIfIdleLocked()
}

// BlockCount reports how many blocks currently carry an occupancy entry for
// this train.
func (t *Train) BlockCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockCount
}

func (t *Train) deactivateIfIdleLocked() {
	if t.blockCount == 0 && t.throttle == nil && t.lastSetSpeedPoint.TableIdx == nullTableEntry {
		t.active = false
	}
}

// Vehicles returns the train's vehicles in head-to-tail order.
func (t *Train) Vehicles() []*RailVehicle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*RailVehicle, len(t.vehicles))
	copy(out, t.vehicles)
	return out
}

// Active reports whether the train currently owns its vehicles.
func (t *Train) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Direction returns the train's nominal running direction.
func (t *Train) Direction() decoder.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.direction
}

// IsStopped reports whether the train has committed (not merely
// requested) zero speed.
func (t *Train) IsStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSetSpeedPoint.TableIdx == nullTableEntry
}

// AddVehicle appends a vehicle to the train and marks the speed table
// stale. The table is rebuilt when Acquire next activates an inactive
// train; an already active train keeps its current table.
func (t *Train) AddVehicle(v *RailVehicle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vehicles = append(t.vehicles, v)
	t.speedTableStale = true
}

// RemoveVehicle removes v from the train.
func (t *Train) RemoveVehicle(v *RailVehicle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.vehicles {
		if existing == v {
			t.vehicles = append(t.vehicles[:i], t.vehicles[i+1:]...)
			t.speedTableStale = true
			return nil
		}
	}
	return ErrVehicleNotAssignedToATrain
}

// poweredSpeedCurves returns the speed curves of every powered vehicle, in
// train order.
func (t *Train) poweredSpeedCurves() []*SpeedCurve {
	var curves []*SpeedCurve
	for _, v := range t.vehicles {
		if v.Powered() && v.SpeedCurve != nil && v.SpeedCurve.Valid() {
			curves = append(curves, v.SpeedCurve)
		}
	}
	return curves
}

func (t *Train) poweredVehicles() []*RailVehicle {
	var out []*RailVehicle
	for _, v := range t.vehicles {
		if v.Powered() {
			out = append(out, v)
		}
	}
	return out
}

// rebuildSpeedTableLocked recomputes the train's speed table from its
// current powered vehicles. Deferred while inactive (§4.6.1's "deferred
// while the train is inactive").
func (t *Train) rebuildSpeedTableLocked() {
	if !t.active {
		t.speedTableStale = true
		return
	}

	curves := t.poweredSpeedCurves()
	if len(curves) == 0 {
		t.speedTable = nil
		t.speedTableStale = false
		return
	}

	table := BuildSpeedTable(curves)
	if table.Count() <= 1 {
		t.speedTable = nil
	} else {
		t.speedTable = table
	}
	t.speedTableStale = false

	if t.speedTable != nil {
		t.maxSpeedPoint = SpeedPoint{
			TableIdx: t.speedTable.Count(),
			SpeedMPS: t.speedTable.EntryAt(t.speedTable.Count()).AvgSpeed,
		}
	} else {
		t.maxSpeedPoint = SpeedPoint{}
	}
}

// Throttle is a handle granting exclusive control of a Train.
type Throttle struct {
	train *Train
}

// Release gives up control of the throttle's train.
func (th *Throttle) Release() {
	if th == nil || th.train == nil {
		return
	}
	th.train.release(th)
}

// Acquire grants control of the train to a new Throttle. If the train is
// already held and steal is false, ErrAlreadyAcquired is returned.
// Acquire does not check whether a vehicle is assigned to another train
// and never returns ErrCanNotActivateTrain.
func (t *Train) Acquire(steal bool) (*Throttle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.throttle != nil && !steal {
		return nil, ErrAlreadyAcquired
	}

	if !t.active {
		for _, v := range t.vehicles {
			if v.Decoder != nil && v.Decoder.Throttle() != 0 {
				// no ownership check is made here, and pkgs/world does not
				// track which train a vehicle belongs to either.
			}
		}
		t.active = true
		if t.speedTableStale {
			t.rebuildSpeedTableLocked()
		}
	}

	th := &Throttle{train: t}
	t.throttle = th
	return th, nil
}

func (t *Train) release(th *Throttle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.throttle != th {
		return
	}
	t.throttle = nil
	t.deactivateIfIdleLocked()
}

// SetDirection changes the train's nominal direction and pushes it to
// every powered vehicle (inverted per-vehicle where InvertDirection is
// set). Fails unless the train is fully stopped.
func (t *Train) SetDirection(dir decoder.Direction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastSetSpeedPoint.TableIdx != nullTableEntry {
		return ErrTrainMustBeStoppedToChangeDirection
	}
	if t.direction == dir {
		return nil
	}
	t.direction = dir

	for _, v := range t.vehicles {
		if !v.Powered() {
			continue
		}
		effective := v.EffectiveDirection(dir)
		v.lastSetDirection = effective
		_ = v.Decoder.SetDirection(effective)
	}
	return nil
}

// SetEmergencyStop latches or releases the train's emergency stop. Setting
// it cancels any ramp, zeroes the committed speed and stops every powered
// decoder immediately.
func (t *Train) SetEmergencyStop(stop bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.emergencyStop == stop {
		return
	}
	t.emergencyStop = stop

	if stop {
		t.cancelRampLocked()
		t.lastSetSpeedPoint = SpeedPoint{}
		t.throttleSpeedPoint = SpeedPoint{}
		for _, v := range t.poweredVehicles() {
			v.Decoder.SetEmergencyStop(true)
		}
	} else {
		for _, v := range t.poweredVehicles() {
			v.Decoder.SetEmergencyStop(false)
		}
	}
}

func (t *Train) cancelRampLocked() {
	if t.rampTimer != nil {
		t.rampTimer.Stop()
		t.rampTimer = nil
	}
	if t.delayTimer != nil {
		t.delayTimer.Stop()
		t.delayTimer = nil
	}
	t.speedState = SpeedIdle
}

// SetThrottleSpeed requests a new target speed (scale m/s). The request is
// snapped to the closest speed-table entry and clamped at the train's max
// entry, then an acceleration or braking ramp is (re)armed toward it.
func (t *Train) SetThrottleSpeed(targetMPS float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.speedTable == nil {
		return fmt.Errorf("train: no speed table (no powered vehicle with a speed curve)")
	}

	entry, idx := t.speedTable.GetClosestMatchBySpeed(targetMPS)
	t.throttleSpeedPoint = SpeedPoint{TableIdx: idx, SpeedMPS: entry.AvgSpeed}

	if t.throttleSpeedPoint.TableIdx > t.maxSpeedPoint.TableIdx {
		t.throttleSpeedPoint = t.maxSpeedPoint
	}

	t.armRampLocked()
	return nil
}

// armRampLocked starts (or leaves alone) the ramp timer that steps
// lastSetSpeedPoint toward throttleSpeedPoint one table entry at a time.
func (t *Train) armRampLocked() {
	if t.rampTimer != nil {
		return // ramp already running; it re-evaluates direction each tick
	}
	if t.throttleSpeedPoint.TableIdx == t.lastSetSpeedPoint.TableIdx {
		return
	}

	var nextIdx int
	var rate float64
	if t.throttleSpeedPoint.TableIdx > t.lastSetSpeedPoint.TableIdx {
		nextIdx = t.lastSetSpeedPoint.TableIdx + 1
		rate = t.AccelerationRate
		t.speedState = SpeedAccelerating
	} else {
		nextIdx = t.lastSetSpeedPoint.TableIdx - 1
		rate = t.BrakingRate
		t.speedState = SpeedBraking
	}

	currentSpeed := t.lastSetSpeedPoint.SpeedMPS
	nextSpeed := t.speedTable.EntryAt(nextIdx).AvgSpeed
	deltaSpeed := nextSpeed - currentSpeed
	if deltaSpeed < 0 {
		deltaSpeed = -deltaSpeed
	}

	var delay time.Duration
	if rate <= 0 || t.ScaleRatio <= 0 {
		delay = 0
	} else {
		seconds := deltaSpeed / (rate / t.ScaleRatio)
		delay = time.Duration(seconds * float64(time.Second))
	}

	t.rampTimer = time.AfterFunc(delay, func() { t.rampTick(nextIdx, nextSpeed) })
}

func (t *Train) rampTick(tableIdx int, speed float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rampTimer = nil
	t.lastSetSpeedPoint = SpeedPoint{TableIdx: tableIdx, SpeedMPS: speed}
	t.commitSpeedLocked()

	if t.lastSetSpeedPoint.TableIdx == t.throttleSpeedPoint.TableIdx {
		t.speedState = SpeedIdle
		return
	}
	t.armRampLocked()
}

// commitSpeedLocked drives every powered decoder to the step assigned to
// it by the current lastSetSpeedPoint entry, and invokes OnSpeedChanged.
func (t *Train) commitSpeedLocked() {
	entry := t.speedTable.EntryAt(t.lastSetSpeedPoint.TableIdx)
	powered := t.poweredVehicles()

	for i, v := range powered {
		var step uint8
		if i < len(entry.StepForLoco) {
			step = entry.StepForLoco[i]
		}
		v.lastTrainSpeedStep = step
		_ = v.Decoder.SetThrottle(decoder.SpeedStepToThrottle(step, speedSteps))
	}

	if t.OnSpeedChanged != nil {
		point := t.lastSetSpeedPoint
		go t.OnSpeedChanged(point)
	}
}

// HandleDecoderThrottle reacts to a throttle change originating from the
// decoder itself (a handheld or another throttle on the bus), rather than
// from this coordinator's own ramp. Grounded on train.cpp's
// handleDecoderThrottle.
func (t *Train) HandleDecoderThrottle(vehicle *RailVehicle, newThrottle float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active || t.speedTable == nil || !vehicle.Powered() {
		return
	}

	locoIdx := -1
	for i, v := range t.poweredVehicles() {
		if v == vehicle {
			locoIdx = i
			break
		}
	}
	if locoIdx < 0 {
		return
	}

	step := decoder.ThrottleToSpeedStep(newThrottle, speedSteps)
	oldStep := vehicle.lastTrainSpeedStep
	if step == oldStep {
		return // echo of our own last commit
	}

	maxEntry := t.speedTable.EntryAt(t.maxSpeedPoint.TableIdx)
	if locoIdx < len(maxEntry.StepForLoco) && step > maxEntry.StepForLoco[locoIdx] {
		vehicle.lastTrainSpeedStep = oldStep
		_ = vehicle.Decoder.SetThrottle(decoder.SpeedStepToThrottle(oldStep, speedSteps))
		t.throttleSpeedPoint = t.maxSpeedPoint
		t.armRampLocked()
		return
	}

	entry, idx := t.speedTable.GetClosestMatchByStep(locoIdx, step)
	var newStep uint8
	if locoIdx < len(entry.StepForLoco) {
		newStep = entry.StepForLoco[locoIdx]
	}

	needsDelay := false
	if newStep != step && idx == t.lastSetSpeedPoint.TableIdx {
		delta := int(oldStep) - int(step)
		if delta < 0 {
			delta = -delta
		}
		if delta <= decoderThrottleHoldStepThreshold {
			needsDelay = true
		}
	}

	if needsDelay {
		vehicle.lastTrainSpeedStep = step
		t.armDelayedApplyLocked(vehicle)
		return
	}

	t.lastSetSpeedPoint = SpeedPoint{TableIdx: idx, SpeedMPS: entry.AvgSpeed}
	t.throttleSpeedPoint = t.lastSetSpeedPoint
	t.commitSpeedLocked()
}

func (t *Train) armDelayedApplyLocked(vehicle *RailVehicle) {
	if t.delayTimer != nil {
		t.delayTimer.Stop()
	}
	t.delayTimer = time.AfterFunc(decoderThrottleHoldDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.delayTimer = nil

		step := vehicle.lastTrainSpeedStep
		locoIdx := -1
		for i, v := range t.poweredVehicles() {
			if v == vehicle {
				locoIdx = i
				break
			}
		}
		if locoIdx < 0 || t.speedTable == nil {
			return
		}
		entry, idx := t.speedTable.GetClosestMatchByStep(locoIdx, step)
		t.lastSetSpeedPoint = SpeedPoint{TableIdx: idx, SpeedMPS: entry.AvgSpeed}
		t.throttleSpeedPoint = t.lastSetSpeedPoint
		t.commitSpeedLocked()
	})
}
