package loconet

import "github.com/keskad/traintastic-go/pkgs/loconet/message"

const invalidAddress = 0xFFFF
const invalidSpeed = 0xFF

// triState mirrors the three-valued logic the command station itself
// uses for function state before a slot has ever reported it.
type triState uint8

const (
	triUndefined triState = iota
	triFalse
	triTrue
)

func triFrom(b bool) triState {
	if b {
		return triTrue
	}
	return triFalse
}

// locoSlot is the kernel's local shadow of one LocoNet slot-table entry:
// enough to know whether a pending command needs a slot number at all,
// and to answer "what do we currently believe this loco's state is"
// without a round trip.
type locoSlot struct {
	address   uint16
	speed     uint8
	direction message.Direction
	functions [29]triState // F0..F28
}

func newLocoSlot() *locoSlot {
	s := &locoSlot{}
	s.invalidate()
	return s
}

func (s *locoSlot) isAddressValid() bool {
	return s.address != invalidAddress
}

func (s *locoSlot) invalidate() {
	s.address = invalidAddress
	s.speed = invalidSpeed
	s.direction = message.DirectionUnknown
	for i := range s.functions {
		s.functions[i] = triUndefined
	}
}

func (s *locoSlot) applySlotReadData(v message.SlotReadDataView) {
	s.address = v.Address()
	if v.IsEmergencyStop() {
		s.speed = message.SpeedEStop
	} else {
		s.speed = v.Speed()
	}
	s.direction = v.Direction()
	for n := 0; n <= 8; n++ {
		s.functions[n] = triFrom(v.F(n))
	}
}

// getLocoSlot returns the cached slot state for slot, creating an empty
// tracking entry if this is the first time the kernel has seen it.
func (k *Kernel) getLocoSlot(slot uint8) *locoSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.getLocoSlotLocked(slot)
}

func (k *Kernel) getLocoSlotLocked(slot uint8) *locoSlot {
	s, ok := k.slots[slot]
	if !ok {
		s = newLocoSlot()
		k.slots[slot] = s
	}
	return s
}

// getLocoSlotByAddress returns the slot number bound to address, or
// message.SlotUnknown if no binding exists yet.
func (k *Kernel) getLocoSlotByAddress(address uint16) uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot, ok := k.addressToSlot[address]
	if !ok {
		return message.SlotUnknown
	}
	return slot
}

func (k *Kernel) bindSlot(slot uint8, address uint16) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.addressToSlot[address] = slot
	k.getLocoSlotLocked(slot).address = address
}

// clearLocoSlot drops a slot's cached state and address binding, called
// when the command station reports the slot has become free.
func (k *Kernel) clearLocoSlot(slot uint8) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[slot]
	if ok {
		delete(k.addressToSlot, s.address)
	}
	delete(k.slots, slot)
}

// queuePendingSlotMessage buffers a message that depends on a slot binding
// that hasn't resolved yet, to be replayed once LOCO_ADR/RQ_SL_DATA binds
// the slot for address.
func (k *Kernel) queuePendingSlotMessage(address uint16, msg message.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pendingSlotMessages[address] = append(k.pendingSlotMessages[address], msg)
}

// drainPendingSlotMessages returns and clears any messages buffered while
// waiting for address to be bound to a slot.
func (k *Kernel) drainPendingSlotMessages(address uint16) []message.Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	msgs := k.pendingSlotMessages[address]
	delete(k.pendingSlotMessages, address)
	return msgs
}
