// Package ioboard models the logical Input, Output and Identification
// endpoints a command station kernel reports on: sensors, accessory
// decoders, and RFID/RailCom transponder detectors.
package ioboard

import "fmt"

// TriState is a value that may not have been reported yet.
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

// Direction mirrors decoder.Direction for transponder detection events,
// kept separate so this package does not need to import pkgs/decoder.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionForward
	DirectionReverse
)

// Binding identifies the (channel, address) pair a logical endpoint is
// bound to on its owning interface; each endpoint is bound to at most one.
type Binding struct {
	Channel uint8
	Address uint16
}

// InputController is implemented by the interface that owns the physical
// sensor bus (pkgs/world's LocoNet bridge, which receives loconet.Kernel's
// INPUT_REP callbacks).
type InputController interface {
	InputChanged(address uint16, value bool)
}

// Input is a tri-state sensor endpoint.
type Input struct {
	Binding    Binding
	controller InputController
	value      TriState
}

// NewInput creates an input bound to the given address and owned by
// controller. It does not register the input with controller; whoever
// routes INPUT_REP frames for this address must call SetValue.
func NewInput(controller InputController, binding Binding) *Input {
	return &Input{Binding: binding, controller: controller}
}

// Value returns the last reported state.
func (i *Input) Value() TriState { return i.value }

// SetValue is called by the owning controller when a wire event updates
// this input's state.
func (i *Input) SetValue(value bool) {
	i.value = triFrom(value)
}

// OutputController is implemented by the interface that owns the physical
// accessory bus (loconet.Kernel for LocoNet SW_REQ; it has no DCCext path).
// This is the outbound direction only — inbound SW_REQ frames observed
// from other throttles arrive through the kernel's own (differently
// shaped) OutputController callback, routed to the matching Output by the
// registry that owns both, and applied here via SetValue.
type OutputController interface {
	SetOutput(address uint16, thrown bool) bool
}

// Output is an on/off accessory decoder channel (a turnout or a signal
// aspect bit).
type Output struct {
	Binding    Binding
	controller OutputController
	value      TriState
}

// NewOutput creates an output bound to the given address.
func NewOutput(controller OutputController, binding Binding) *Output {
	return &Output{Binding: binding, controller: controller}
}

// Value returns the last known state.
func (o *Output) Value() TriState { return o.value }

// SetThrown commands the output to the given state over the wire.
func (o *Output) SetThrown(thrown bool) error {
	if o.controller == nil {
		return fmt.Errorf("output %d: no controller bound", o.Binding.Address)
	}
	if !o.controller.SetOutput(o.Binding.Address, thrown) {
		return fmt.Errorf("output %d: command rejected", o.Binding.Address)
	}
	o.value = triFrom(thrown)
	return nil
}

// SetValue is called by the owning controller when a wire event (another
// throttle's SW_REQ) updates this output's observed state.
func (o *Output) SetValue(thrown bool) {
	o.value = triFrom(thrown)
}

// IdentificationEvent is one detector report: a category-tagged identifier
// (e.g. an RFID tag or RailCom transponder address) with an optional
// direction of travel.
type IdentificationEvent struct {
	Category   string
	Identifier uint16
	Present    bool
	Direction  Direction
}

// IdentificationController is the owner shape for a detector endpoint. No
// type in this module implements it: pkgs/world binds identifications with
// a nil controller and delivers MultiSense/MultiSenseLong reports through
// Report.
type IdentificationController interface {
	IdentificationChanged(sensorAddress uint16, transponderAddress uint16, present bool, direction Direction)
}

// Identification is a detector endpoint reporting which decoder addresses
// are currently present.
type Identification struct {
	Binding    Binding
	controller IdentificationController
	last       IdentificationEvent
}

// NewIdentification creates a detector bound to the given sensor address.
func NewIdentification(controller IdentificationController, binding Binding) *Identification {
	return &Identification{Binding: binding, controller: controller}
}

// Last returns the most recently reported detection event.
func (d *Identification) Last() IdentificationEvent { return d.last }

// Report is called by the owning controller when a transponder event
// arrives for this detector's address.
func (d *Identification) Report(transponderAddress uint16, present bool, direction Direction) {
	d.last = IdentificationEvent{
		Category:   "transponder",
		Identifier: transponderAddress,
		Present:    present,
		Direction:  direction,
	}
}
