package world

import (
	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/ioboard"
	"github.com/keskad/traintastic-go/pkgs/loconet/message"
)

// kernelBridge is the glue adapter between loconet.Kernel and the
// domain-level decoder/ioboard packages. It handles both directions:
//
//   - outbound: DecoderChanged, with decoder.Controller's signature, called
//     when application code changes a Decoder and translated into frames
//     sent over the kernel. The bridge has no Protocols or AddressMinMax
//     method, so it does not satisfy decoder.Controller as a whole; Output
//     commands go to loconet.Kernel.SetOutput directly, not through it.
//   - inbound: the kernel's own DecoderController/InputController/
//     OutputController/IdentificationController, called when the bus
//     reports a change (another throttle, a sensor, a transponder),
//     translated into calls on the matching domain object.
//
// Neither package imports the other; kernelBridge is the only thing that
// knows both shapes.
type kernelBridge struct {
	w     *World
	send  func(address uint16, build func(slot uint8) message.Message) bool
	log   *log.Entry
	inBus bool // true while applying a bus-originated update, to break the notify feedback loop

	outputs map[uint16]*ioboard.Output
	inputs  map[uint16]*ioboard.Input
	idents  map[uint16]*ioboard.Identification
}

func newKernelBridge(w *World, logID string, send func(uint16, func(uint8) message.Message) bool) *kernelBridge {
	return &kernelBridge{
		w:       w,
		send:    send,
		log:     log.WithField("interface", logID),
		outputs: make(map[uint16]*ioboard.Output),
		inputs:  make(map[uint16]*ioboard.Input),
		idents:  make(map[uint16]*ioboard.Identification),
	}
}

// --- outbound: decoder.Controller ---

func (b *kernelBridge) DecoderChanged(dec *decoder.Decoder, changes decoder.ChangeFlags, functionNumber int) {
	if b.inBus {
		return
	}

	addr := dec.Address
	if changes&decoder.ChangeThrottle != 0 || changes&decoder.ChangeEmergencyStop != 0 {
		step := decoder.ThrottleToSpeedStep(dec.Throttle(), 126)
		if dec.EmergencyStop() {
			step = 1 // LocoNet's estop step
		}
		dir := toMessageDirection(dec.Direction())
		b.send(addr, func(slot uint8) message.Message {
			return message.LocoDirF(slot, dir, dec.Function(0) == decoder.TriTrue, dec.Function(1) == decoder.TriTrue, dec.Function(2) == decoder.TriTrue, dec.Function(3) == decoder.TriTrue, dec.Function(4) == decoder.TriTrue)
		})
		b.send(addr, func(slot uint8) message.Message {
			return message.LocoSpd(slot, step)
		})
	}

	if changes&decoder.ChangeDirection != 0 {
		dir := toMessageDirection(dec.Direction())
		b.send(addr, func(slot uint8) message.Message {
			return message.LocoDirF(slot, dir, false, false, false, false, false)
		})
	}

	if changes&decoder.ChangeFunction != 0 && functionNumber >= 5 && functionNumber <= 8 {
		b.send(addr, func(slot uint8) message.Message {
			return message.LocoSnd(slot, dec.Function(5) == decoder.TriTrue, dec.Function(6) == decoder.TriTrue, dec.Function(7) == decoder.TriTrue, dec.Function(8) == decoder.TriTrue)
		})
	}
}

func toMessageDirection(d decoder.Direction) message.Direction {
	if d == decoder.DirectionReverse {
		return message.DirectionReverse
	}
	return message.DirectionForward
}

// --- inbound: loconet.DecoderController ---

func (b *kernelBridge) DecoderChangedFromBus(address uint16, speed uint8, direction message.Direction, functions [29]bool) {
	// Called from the kernel's own read goroutine: hop onto the world
	// goroutine before touching arena state or decoder objects.
	_ = b.w.post(func() error {
		entry := b.w.decoderByAddressLocked(decoder.ProtocolDCC, address)
		if entry == nil {
			b.log.WithField("address", address).Debug("world: bus reported unknown decoder address")
			return nil
		}

		b.inBus = true
		defer func() { b.inBus = false }()

		dec := entry.decoder
		_ = dec.SetThrottle(decoder.SpeedStepToThrottle(speed, 126))
		dir := decoder.DirectionForward
		if direction == message.DirectionReverse {
			dir = decoder.DirectionReverse
		}
		_ = dec.SetDirection(dir)
		for i, on := range functions {
			_ = dec.SetFunction(i, on)
		}

		if entry.vehicle != nil && entry.train != nil {
			entry.train.HandleDecoderThrottle(entry.vehicle, dec.Throttle())
		}
		return nil
	})
}

// --- outbound: ioboard.OutputController is satisfied directly by
// loconet.Kernel.SetOutput, so no adapter method is needed here.

// --- inbound: loconet.InputController / OutputController / IdentificationController ---

func (b *kernelBridge) InputChanged(address uint16, value bool) {
	_ = b.w.post(func() error {
		if in, ok := b.inputs[address]; ok {
			in.SetValue(value)
		}
		return nil
	})
}

func (b *kernelBridge) OutputChanged(address uint16, thrown bool) {
	_ = b.w.post(func() error {
		if out, ok := b.outputs[address]; ok {
			out.SetValue(thrown)
		}
		return nil
	})
}

func (b *kernelBridge) IdentificationChanged(sensorAddress uint16, transponderAddress uint16, present bool, direction message.Direction) {
	_ = b.w.post(func() error {
		ident, ok := b.idents[sensorAddress]
		if !ok {
			return nil
		}
		dir := ioboard.DirectionForward
		if direction == message.DirectionReverse {
			dir = ioboard.DirectionReverse
		}
		ident.Report(transponderAddress, present, dir)
		return nil
	})
}

// RegisterOutput makes address visible to future OutputChanged callbacks.
func (b *kernelBridge) RegisterOutput(address uint16, out *ioboard.Output) { b.outputs[address] = out }

// RegisterInput makes address visible to future InputChanged callbacks.
func (b *kernelBridge) RegisterInput(address uint16, in *ioboard.Input) { b.inputs[address] = in }

// RegisterIdentification makes address visible to future IdentificationChanged callbacks.
func (b *kernelBridge) RegisterIdentification(address uint16, ident *ioboard.Identification) {
	b.idents[address] = ident
}
