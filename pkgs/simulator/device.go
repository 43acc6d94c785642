// Package simulator implements a virtual command station: an IO handler
// that sits on the same bus pkgs/loconet.Kernel talks to, but instead of a
// real LocoBuffer or Z21, it is its own tiny command station. It owns a
// slot array, echoes every outbound frame straight back the way a shared
// bus naturally loops a transmission back to its sender, and synthesizes
// the response a real unit would send with no added delay.
package simulator

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/loconet/message"
	"github.com/keskad/traintastic-go/pkgs/wire"
)

// Uhlenbrock LNCV sub-protocol command bytes, carried inside OPC_PEER_XFER
// payloads. Mirrors pkgs/loconet's unexported lncvCmd* constants; a
// simulated module answers the same bytes a real one would see on the bus.
const (
	lncvCmdStart = 0x01
	lncvCmdRead  = 0x02
	lncvCmdWrite = 0x03
	lncvCmdStop  = 0x04
)

// simSlot is the device's own view of one locomotive slot, the mirror
// image of loconet's unexported locoSlot.
type simSlot struct {
	address   uint16
	speed     uint8
	direction message.Direction
	functions [29]bool
}

// Module is a virtual LNCV-programmable accessory module (a block
// occupancy detector, a turnout decoder) the device answers programming
// sessions on behalf of.
type Module struct {
	ModuleID      uint16
	ModuleAddress uint16
	Values        map[uint16]uint16
}

// Device is a simulated command station bound to one end of a
// wire.PipeTransport; the matching loconet.Kernel is built on the same
// transport so every frame the kernel writes is handed to the device and
// every frame the device sends is handed back to the kernel, with no real
// hardware involved.
type Device struct {
	pt      *wire.PipeTransport
	handler *wire.Handler
	log     *log.Entry

	mu            sync.Mutex
	slots         map[uint8]*simSlot
	addressToSlot map[uint16]uint8
	nextSlot      uint8

	modules     []*Module
	activeLNCV  *Module

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDevice builds a simulated command station on pt. It does not start
// processing frames until Start is called.
func NewDevice(logID string, pt *wire.PipeTransport) *Device {
	d := &Device{
		pt:            pt,
		log:           log.WithField("simulator", logID),
		slots:         make(map[uint8]*simSlot),
		addressToSlot: make(map[uint16]uint8),
		nextSlot:      message.SlotLocoMin,
		stopCh:        make(chan struct{}),
	}
	d.handler = wire.NewHandler(message.WireSizer{}, d.onFrame, nil)
	return d
}

// RegisterModule makes m answer LNCV programming sessions addressed to its
// module ID and address.
func (d *Device) RegisterModule(m *Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules = append(d.modules, m)
}

// Start begins draining frames the kernel writes onto the shared pipe.
func (d *Device) Start() error {
	d.wg.Add(1)
	go d.run()
	return nil
}

// Stop ends the device's read loop. It does not close the underlying pipe;
// that is the Kernel's responsibility via Transport.Close.
func (d *Device) Stop() error {
	close(d.stopCh)
	d.wg.Wait()
	return nil
}

func (d *Device) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case chunk, ok := <-d.pt.Out:
			if !ok {
				return
			}
			d.handler.Receive(chunk)
		}
	}
}

// send pushes msg onto the kernel-facing side of the pipe.
func (d *Device) send(msg message.Message) {
	cp := append(message.Message(nil), msg...)
	select {
	case d.pt.In <- cp:
	case <-d.stopCh:
	}
}

func (d *Device) onFrame(frame []byte) {
	msg := message.Message(frame)
	d.log.WithField("frame", msg.String()).Debug("simulator: received frame")

	// A shared bus loops every transmission back to its sender before any
	// dedicated reply follows.
	d.send(msg)

	switch msg.OpCode() {
	case message.OpLocoAdr:
		d.handleLocoAdr(message.AsLocoAdr(msg))
	case message.OpRqSlData:
		d.handleRequestSlotData(msg)
	case message.OpLocoSpd:
		d.handleLocoSpd(message.AsLocoSpd(msg))
	case message.OpLocoDirF:
		d.handleLocoDirF(message.AsLocoDirF(msg))
	case message.OpLocoSnd:
		d.handleLocoSnd(message.AsLocoSnd(msg))
	case message.OpLocoF9F12:
		d.handleLocoF9F12(message.AsLocoF9F12(msg))
	case message.OpD4:
		d.handleD4(msg)
	case message.OpSwReq:
		d.send(message.LongAck(message.OpSwReq, 0x7F))
	case message.OpWrSlData:
		d.send(message.LongAck(message.OpWrSlData, 0x7F))
	case message.OpMoveSlots, message.OpLinkSlots, message.OpUnlinkSlots:
		d.send(message.LongAck(msg.OpCode(), 0x7F))
	case message.OpPeerXfer:
		d.handlePeerXfer(message.AsPeerXfer(msg))
	}
}

func (d *Device) handleLocoAdr(v message.LocoAdrView) {
	address := v.Address()

	d.mu.Lock()
	slot, ok := d.addressToSlot[address]
	if !ok {
		var err error
		slot, err = d.allocateSlotLocked(address)
		if err != nil {
			d.mu.Unlock()
			d.log.WithField("address", address).Warn("simulator: slot table exhausted")
			d.send(message.LongAck(message.OpLocoAdr, 0))
			return
		}
	}
	s := d.slots[slot]
	d.mu.Unlock()

	d.send(d.buildSlotReadData(slot, s))
}

func (d *Device) handleRequestSlotData(msg message.Message) {
	slot := msg[1]
	d.mu.Lock()
	s, ok := d.slots[slot]
	d.mu.Unlock()
	if !ok {
		d.send(message.LongAck(message.OpRqSlData, 0))
		return
	}
	d.send(d.buildSlotReadData(slot, s))
}

// allocateSlotLocked must be called with d.mu held.
func (d *Device) allocateSlotLocked(address uint16) (uint8, error) {
	for i := uint8(0); i < message.SlotLocoMax-message.SlotLocoMin+1; i++ {
		candidate := d.nextSlot
		d.nextSlot++
		if d.nextSlot > message.SlotLocoMax {
			d.nextSlot = message.SlotLocoMin
		}
		if _, busy := d.slots[candidate]; !busy {
			d.slots[candidate] = &simSlot{address: address}
			d.addressToSlot[address] = candidate
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("simulator: no free slot for address %d", address)
}

func (d *Device) buildSlotReadData(slot uint8, s *simSlot) message.Message {
	m := make(message.Message, 14)
	m[0] = byte(message.OpSlRdData)
	m[1] = 14
	m[2] = slot
	m[3] = message.SlBusy | message.SlActive
	m[4] = byte(s.address & 0x7F)
	m[5] = speedByte(s)
	m[6] = dirfByte(s)
	m[7] = 0
	m[8] = byte((s.address >> 7) & 0x7F)
	m[9] = sndByte(s)
	m[10] = 0
	m[11] = 0
	m[12] = 0
	message.UpdateChecksum(m)
	return m
}

func speedByte(s *simSlot) byte {
	if s.speed == message.SpeedEStop {
		return 0x01
	}
	if s.speed == 0 {
		return 0
	}
	return s.speed + 1
}

func dirfByte(s *simSlot) byte {
	var b byte
	if s.direction == message.DirectionForward {
		b |= message.SlDir
	}
	masks := []byte{message.SlF0, message.SlF1, message.SlF2, message.SlF3, message.SlF4}
	for n, mask := range masks {
		if s.functions[n] {
			b |= mask
		}
	}
	return b
}

func sndByte(s *simSlot) byte {
	var b byte
	masks := []byte{message.SlF5, message.SlF6, message.SlF7, message.SlF8}
	for i, mask := range masks {
		if s.functions[5+i] {
			b |= mask
		}
	}
	return b
}

func (d *Device) handleLocoSpd(v message.LocoSpdView) {
	d.withSlot(v.Slot(), func(s *simSlot) { s.speed = v.Speed() })
}

func (d *Device) handleLocoDirF(v message.LocoDirFView) {
	d.withSlot(v.Slot(), func(s *simSlot) {
		s.direction = v.Direction()
		for n := 0; n <= 4; n++ {
			s.functions[n] = v.F(n)
		}
	})
}

func (d *Device) handleLocoSnd(v message.LocoSndView) {
	d.withSlot(v.Slot(), func(s *simSlot) {
		for n := 5; n <= 8; n++ {
			s.functions[n] = v.F(n)
		}
	})
}

func (d *Device) handleLocoF9F12(v message.LocoF9F12View) {
	d.withSlot(v.Slot(), func(s *simSlot) {
		for n := 9; n <= 12; n++ {
			s.functions[n] = v.F(n)
		}
	})
}

func (d *Device) handleD4(msg message.Message) {
	if len(msg) < 4 {
		return
	}
	switch msg[3] {
	case message.D4SubF13F19:
		v := message.AsLocoF13F19(msg)
		d.withSlot(v.Slot(), func(s *simSlot) {
			for n := 13; n <= 19; n++ {
				s.functions[n] = v.F(n)
			}
		})
	case message.D4SubF21F27:
		v := message.AsLocoF21F27(msg)
		d.withSlot(v.Slot(), func(s *simSlot) {
			for n := 21; n <= 27; n++ {
				s.functions[n] = v.F(n)
			}
		})
	case message.D4SubF12F20F28:
		v := message.AsLocoF12F20F28(msg)
		d.withSlot(v.Slot(), func(s *simSlot) {
			s.functions[12] = v.F12()
			s.functions[20] = v.F20()
			s.functions[28] = v.F28()
		})
	}
}

func (d *Device) withSlot(slot uint8, f func(*simSlot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[slot]
	if !ok {
		s = &simSlot{}
		d.slots[slot] = s
	}
	f(s)
}

// handlePeerXfer answers an LNCV programming command against whichever
// registered module it addresses.
func (d *Device) handlePeerXfer(v message.PeerXferView) {
	data := v.Data()
	if len(data) < 9 {
		return
	}
	cmd := data[0]
	moduleID := uint16(data[1]) | uint16(data[2])<<8
	moduleAddress := uint16(data[3]) | uint16(data[4])<<8
	lncv := uint16(data[5]) | uint16(data[6])<<8
	value := uint16(data[7]) | uint16(data[8])<<8

	switch cmd {
	case lncvCmdStart:
		d.mu.Lock()
		d.activeLNCV = d.findModuleLocked(moduleID, moduleAddress)
		d.mu.Unlock()
	case lncvCmdRead:
		d.mu.Lock()
		m := d.activeLNCV
		d.mu.Unlock()
		if m == nil {
			return
		}
		got, ok := m.Values[lncv]
		if !ok {
			got = 0
		}
		payload := []byte{
			lncvCmdRead,
			byte(moduleID), byte(moduleID >> 8),
			byte(moduleAddress), byte(moduleAddress >> 8),
			byte(lncv), byte(lncv >> 8),
			byte(got), byte(got >> 8),
		}
		d.send(message.PeerXfer(payload))
	case lncvCmdWrite:
		d.mu.Lock()
		m := d.activeLNCV
		d.mu.Unlock()
		if m == nil {
			return
		}
		if m.Values == nil {
			m.Values = make(map[uint16]uint16)
		}
		m.Values[lncv] = value
	case lncvCmdStop:
		d.mu.Lock()
		if d.activeLNCV != nil && d.activeLNCV.ModuleID == moduleID {
			d.activeLNCV = nil
		}
		d.mu.Unlock()
	}
}

// findModuleLocked must be called with d.mu held.
func (d *Device) findModuleLocked(moduleID, moduleAddress uint16) *Module {
	for _, m := range d.modules {
		if m.ModuleID == moduleID && m.ModuleAddress == moduleAddress {
			return m
		}
	}
	return nil
}
