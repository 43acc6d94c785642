// Package decoder models a logical locomotive decoder: the addressable,
// protocol-tagged object a train's coordinator drives and a command
// station kernel (loconet.Kernel, xpressnet.Kernel, ...) reports
// state changes for.
package decoder

import (
	"errors"
	"fmt"
)

// ErrInvalidThrottle is returned by SetThrottle when the requested value
// falls outside [0,1].
var ErrInvalidThrottle = errors.New("decoder: invalid throttle value")

// Protocol identifies the wire protocol a decoder answers to.
type Protocol string

const (
	ProtocolDCC      Protocol = "dcc"
	ProtocolMotorola Protocol = "motorola"
	ProtocolMFX      Protocol = "mfx"
	ProtocolSelectrix Protocol = "selectrix"
)

// Direction is the locomotive's running direction as understood by the
// decoder layer; Unknown means no direction has been established yet.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionForward
	DirectionReverse
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Opposite returns the reversed direction; Unknown maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionForward:
		return DirectionReverse
	case DirectionReverse:
		return DirectionForward
	default:
		return DirectionUnknown
	}
}

// TriState is a function value that may not have been reported yet.
type TriState int

const (
	TriUndefined TriState = iota
	TriFalse
	TriTrue
)

func triFrom(b bool) TriState {
	if b {
		return TriTrue
	}
	return TriFalse
}

// ChangeFlags marks which decoder attributes were modified by a single
// DecoderChanged call, so a kernel can pick the narrowest wire message
// family instead of resending every attribute.
type ChangeFlags uint8

const (
	ChangeThrottle ChangeFlags = 1 << iota
	ChangeDirection
	ChangeEmergencyStop
	ChangeFunction
)

// functionCount is the size of the tracked function array, matching the
// 29-entry (F0..F28) range LocoNet's slot and D4/PEER_XFER messages cover.
const functionCount = 29

// Controller is implemented by whatever owns the wire connection to a
// decoder's interface (xpressnet.Kernel satisfies this for XpressNet;
// loconet.Kernel does not, its DecoderChanged takes bus-side slot state).
type Controller interface {
	Protocols() []Protocol
	AddressMinMax(protocol Protocol) (min, max uint16)
	DecoderChanged(dec *Decoder, changes ChangeFlags, functionNumber int)
}

// Decoder is a logical locomotive controller: protocol tag + address,
// current throttle, direction, emergency-stop flag and function values.
type Decoder struct {
	Protocol      Protocol
	Address       uint16
	LongAddress   bool
	FunctionCount int

	controller Controller

	throttle      float64
	direction     Direction
	emergencyStop bool
	functions     [functionCount]TriState
}

// New creates a decoder bound to controller, which receives every
// subsequent DecoderChanged notification.
func New(controller Controller, protocol Protocol, address uint16, longAddress bool) *Decoder {
	return &Decoder{
		Protocol:      protocol,
		Address:       address,
		LongAddress:   longAddress,
		FunctionCount: functionCount,
		controller:    controller,
	}
}

// Throttle returns the current throttle in [0,1].
func (d *Decoder) Throttle() float64 { return d.throttle }

// Direction returns the current running direction.
func (d *Decoder) Direction() Direction { return d.direction }

// EmergencyStop reports whether the decoder is latched in emergency stop.
func (d *Decoder) EmergencyStop() bool { return d.emergencyStop }

// Function returns the tracked value of function fn, or TriUndefined if fn
// is out of range or was never reported.
func (d *Decoder) Function(fn int) TriState {
	if fn < 0 || fn >= functionCount {
		return TriUndefined
	}
	return d.functions[fn]
}

// SetThrottle sets the throttle and notifies the controller. A value
// outside [0,1] is rejected with ErrInvalidThrottle and leaves the
// throttle unchanged. Does not clear emergency stop.
func (d *Decoder) SetThrottle(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("decoder %d: throttle %v out of range [0,1]: %w", d.Address, value, ErrInvalidThrottle)
	}
	d.throttle = value
	d.notify(ChangeThrottle, -1)
	return nil
}

// SetDirection changes the running direction and notifies the controller.
// Unknown is rejected: a decoder's direction can only be set to a concrete
// value.
func (d *Decoder) SetDirection(dir Direction) error {
	if dir == DirectionUnknown {
		return fmt.Errorf("decoder %d: cannot set direction to unknown", d.Address)
	}
	if d.direction == dir {
		return nil
	}
	d.direction = dir
	d.notify(ChangeDirection, -1)
	return nil
}

// SetEmergencyStop latches or releases emergency stop. Latching zeroes the
// throttle; releasing is otherwise a no-op — a throttle command must
// follow to resume motion.
func (d *Decoder) SetEmergencyStop(stop bool) {
	if d.emergencyStop == stop {
		return
	}
	d.emergencyStop = stop
	if stop {
		d.throttle = 0
	}
	d.notify(ChangeEmergencyStop, -1)
}

// SetFunction sets function fn and notifies the controller with the
// function number that changed.
func (d *Decoder) SetFunction(fn int, value bool) error {
	if fn < 0 || fn >= functionCount {
		return fmt.Errorf("decoder %d: function %d out of range [0,%d)", d.Address, fn, functionCount)
	}
	next := triFrom(value)
	if d.functions[fn] == next {
		return nil
	}
	d.functions[fn] = next
	d.notify(ChangeFunction, fn)
	return nil
}

func (d *Decoder) notify(changes ChangeFlags, functionNumber int) {
	if d.controller != nil {
		d.controller.DecoderChanged(d, changes, functionNumber)
	}
}

// ThrottleToSpeedStep converts a [0,1] throttle to a discrete speed step in
// [0,maxStep]. The conversion itself (linear, rounded) is this port's own
// choice: the original throttle<->step mapping lived in decoder.cpp, which
// was not part of the retrieved source.
func ThrottleToSpeedStep(throttle float64, maxStep uint8) uint8 {
	if throttle <= 0 {
		return 0
	}
	if throttle >= 1 {
		return maxStep
	}
	step := int(throttle*float64(maxStep) + 0.5)
	if step > int(maxStep) {
		step = int(maxStep)
	}
	return uint8(step)
}

// SpeedStepToThrottle is the inverse of ThrottleToSpeedStep.
func SpeedStepToThrottle(step uint8, maxStep uint8) float64 {
	if maxStep == 0 {
		return 0
	}
	return float64(step) / float64(maxStep)
}
