package message

// Direction is a locomotive's travel direction as encoded in DIRF-family
// bytes: a single bit, forward when set.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionForward
	DirectionReverse
)

// Idle builds an OPC_IDLE frame.
func Idle() Message {
	m := Message{byte(OpIdle), 0}
	UpdateChecksum(m)
	return m
}

// GlobalPowerOn builds an OPC_GPON frame.
func GlobalPowerOn() Message {
	m := Message{byte(OpGPOn), 0}
	UpdateChecksum(m)
	return m
}

// GlobalPowerOff builds an OPC_GPOFF frame.
func GlobalPowerOff() Message {
	m := Message{byte(OpGPOff), 0}
	UpdateChecksum(m)
	return m
}

// Busy builds an OPC_BUSY frame.
func Busy() Message {
	m := Message{byte(OpBusy), 0}
	UpdateChecksum(m)
	return m
}

// LocoAdr builds an OPC_LOCO_ADR request for the given 14-bit address.
func LocoAdr(address uint16) Message {
	m := Message{
		byte(OpLocoAdr),
		byte(address >> 7),
		byte(address & 0x7F),
		0,
	}
	UpdateChecksum(m)
	return m
}

// AsLocoAdr views m as a LOCO_ADR frame.
type LocoAdrView struct{ m Message }

func AsLocoAdr(m Message) LocoAdrView { return LocoAdrView{m} }

func (v LocoAdrView) Address() uint16 {
	return (uint16(v.m[1]) << 7) | uint16(v.m[2])
}

// LocoSpd builds an OPC_LOCO_SPD frame for an as-yet-unbound slot; Kernel
// fills in the slot number once SL_RD_DATA binds it.
func LocoSpd(slot uint8, speed uint8) Message {
	m := Message{byte(OpLocoSpd), slot, speed, 0}
	UpdateChecksum(m)
	return m
}

type LocoSpdView struct{ m Message }

func AsLocoSpd(m Message) LocoSpdView { return LocoSpdView{m} }
func (v LocoSpdView) Slot() uint8     { return v.m[1] }
func (v LocoSpdView) Speed() uint8    { return v.m[2] }

// LocoDirF builds an OPC_LOCO_DIRF frame (direction + F0-F4).
func LocoDirF(slot uint8, direction Direction, f0, f1, f2, f3, f4 bool) Message {
	var dirf byte
	if direction == DirectionForward {
		dirf |= SlDir
	}
	if f0 {
		dirf |= SlF0
	}
	if f1 {
		dirf |= SlF1
	}
	if f2 {
		dirf |= SlF2
	}
	if f3 {
		dirf |= SlF3
	}
	if f4 {
		dirf |= SlF4
	}
	m := Message{byte(OpLocoDirF), slot, dirf, 0}
	UpdateChecksum(m)
	return m
}

type LocoDirFView struct{ m Message }

func AsLocoDirF(m Message) LocoDirFView { return LocoDirFView{m} }
func (v LocoDirFView) Slot() uint8      { return v.m[1] }

func (v LocoDirFView) Direction() Direction {
	if v.m[2]&SlDir != 0 {
		return DirectionForward
	}
	return DirectionReverse
}

func (v LocoDirFView) F(n int) bool {
	if n == 0 {
		return v.m[2]&SlF0 != 0
	}
	return v.m[2]&(1<<(n-1)) != 0
}

// LocoSnd builds an OPC_LOCO_SND frame (F5-F8).
func LocoSnd(slot uint8, f5, f6, f7, f8 bool) Message {
	var snd byte
	if f5 {
		snd |= SlF5
	}
	if f6 {
		snd |= SlF6
	}
	if f7 {
		snd |= SlF7
	}
	if f8 {
		snd |= SlF8
	}
	m := Message{byte(OpLocoSnd), slot, snd, 0}
	UpdateChecksum(m)
	return m
}

type LocoSndView struct{ m Message }

func AsLocoSnd(m Message) LocoSndView { return LocoSndView{m} }
func (v LocoSndView) Slot() uint8     { return v.m[1] }
func (v LocoSndView) F(n int) bool    { return v.m[2]&(1<<(n-5)) != 0 }

// LocoF9F12 builds an OPC_LOCO_F9F12 frame (F9-F12).
func LocoF9F12(slot uint8, f9, f10, f11, f12 bool) Message {
	var fn byte
	if f9 {
		fn |= SlF9
	}
	if f10 {
		fn |= SlF10
	}
	if f11 {
		fn |= SlF11
	}
	if f12 {
		fn |= SlF12
	}
	m := Message{byte(OpLocoF9F12), slot, fn, 0}
	UpdateChecksum(m)
	return m
}

type LocoF9F12View struct{ m Message }

func AsLocoF9F12(m Message) LocoF9F12View { return LocoF9F12View{m} }
func (v LocoF9F12View) Slot() uint8       { return v.m[1] }
func (v LocoF9F12View) F(n int) bool      { return v.m[2]&(1<<(n-9)) != 0 }

// LocoF13F19 builds an OPC_D4 frame carrying the F13-F19 function group.
func LocoF13F19(slot uint8, f13, f14, f15, f16, f17, f18, f19 bool) Message {
	var fn byte
	bits := []bool{f13, f14, f15, f16, f17, f18, f19}
	masks := []byte{SlF13, SlF14, SlF15, SlF16, SlF17, SlF18, SlF19}
	for i, set := range bits {
		if set {
			fn |= masks[i]
		}
	}
	m := Message{byte(OpD4), 0x20, slot, D4SubF13F19, fn, 0}
	UpdateChecksum(m)
	return m
}

type LocoF13F19View struct{ m Message }

func AsLocoF13F19(m Message) LocoF13F19View { return LocoF13F19View{m} }
func (v LocoF13F19View) Slot() uint8        { return v.m[2] }
func (v LocoF13F19View) F(n int) bool       { return v.m[4]&(1<<(n-13)) != 0 }

// LocoF21F27 builds an OPC_D4 frame carrying the F21-F27 function group.
func LocoF21F27(slot uint8, f21, f22, f23, f24, f25, f26, f27 bool) Message {
	var fn byte
	bits := []bool{f21, f22, f23, f24, f25, f26, f27}
	masks := []byte{SlF21, SlF22, SlF23, SlF24, SlF25, SlF26, SlF27}
	for i, set := range bits {
		if set {
			fn |= masks[i]
		}
	}
	m := Message{byte(OpD4), 0x20, slot, D4SubF21F27, fn, 0}
	UpdateChecksum(m)
	return m
}

type LocoF21F27View struct{ m Message }

func AsLocoF21F27(m Message) LocoF21F27View { return LocoF21F27View{m} }
func (v LocoF21F27View) Slot() uint8        { return v.m[2] }
func (v LocoF21F27View) F(n int) bool       { return v.m[4]&(1<<(n-21)) != 0 }

// LocoF12F20F28 builds an OPC_D4 frame carrying the F12/F20/F28 group.
func LocoF12F20F28(slot uint8, f12, f20, f28 bool) Message {
	var fn byte
	if f12 {
		fn |= SlF12Alt
	}
	if f20 {
		fn |= SlF20
	}
	if f28 {
		fn |= SlF28
	}
	m := Message{byte(OpD4), 0x20, slot, D4SubF12F20F28, fn, 0}
	UpdateChecksum(m)
	return m
}

type LocoF12F20F28View struct{ m Message }

func AsLocoF12F20F28(m Message) LocoF12F20F28View { return LocoF12F20F28View{m} }
func (v LocoF12F20F28View) Slot() uint8           { return v.m[2] }
func (v LocoF12F20F28View) F12() bool             { return v.m[4]&SlF12Alt != 0 }
func (v LocoF12F20F28View) F20() bool             { return v.m[4]&SlF20 != 0 }
func (v LocoF12F20F28View) F28() bool             { return v.m[4]&SlF28 != 0 }

// InputRep builds an OPC_INPUT_REP frame for a sensor address change.
func InputRep(fullAddress uint16, isSwitchInput, value bool) Message {
	addr := fullAddress >> 1
	in1 := byte(addr & 0x7F)
	in2 := byte((addr >> 7) & 0x0F)
	if fullAddress&1 != 0 {
		in2 |= 0x20
	}
	if isSwitchInput {
		in2 |= 0x20
	}
	if value {
		in2 |= 0x10
	}
	in2 |= 0x40 // control bit, always set
	m := Message{byte(OpInputRep), in1, in2, 0}
	UpdateChecksum(m)
	return m
}

type InputRepView struct{ m Message }

func AsInputRep(m Message) InputRepView { return InputRepView{m} }

func (v InputRepView) Address() uint16 {
	return (uint16(v.m[1]) & 0x7F) | (uint16(v.m[2]&0x0F) << 7)
}

func (v InputRepView) IsSwitchInput() bool { return v.m[2]&0x20 != 0 }
func (v InputRepView) IsAuxInput() bool    { return !v.IsSwitchInput() }
func (v InputRepView) Value() bool         { return v.m[2]&0x10 != 0 }

// LongAck builds an OPC_LONG_ACK frame acknowledging respondingTo.
func LongAck(respondingTo OpCode, ack1 byte) Message {
	m := Message{byte(OpLongAck), byte(respondingTo) & 0x7F, ack1, 0}
	UpdateChecksum(m)
	return m
}

type LongAckView struct{ m Message }

func AsLongAck(m Message) LongAckView { return LongAckView{m} }
func (v LongAckView) Ack1() byte      { return v.m[2] }

func (v LongAckView) RespondingOpCode() OpCode {
	return OpCode(0x80 | v.m[1])
}

// SwitchRequest builds an OPC_SW_REQ frame for the given switch full
// address (address<<1 | thrownBit) and on/off state.
func SwitchRequest(fullAddress uint16, on bool) Message {
	address := fullAddress >> 1
	dir := fullAddress&1 != 0
	sw1 := byte(address & 0x7F)
	var sw2 byte
	sw2 = byte((address >> 7) & 0x0F)
	if dir {
		sw2 |= Sw2Dir
	}
	if on {
		sw2 |= Sw2On
	}
	m := Message{byte(OpSwReq), sw1, sw2, 0}
	UpdateChecksum(m)
	return m
}

type SwitchRequestView struct{ m Message }

func AsSwitchRequest(m Message) SwitchRequestView { return SwitchRequestView{m} }

func (v SwitchRequestView) Address() uint16 {
	return (uint16(v.m[1]) & 0x7F) | (uint16(v.m[2]&0x0F) << 7)
}

func (v SwitchRequestView) Dir() bool { return v.m[2]&Sw2Dir != 0 }
func (v SwitchRequestView) On() bool  { return v.m[2]&Sw2On != 0 }

func (v SwitchRequestView) FullAddress() uint16 {
	fa := v.Address() << 1
	if v.Dir() {
		fa |= 1
	}
	return fa
}

// RequestSlotData builds an OPC_RQ_SL_DATA frame for the given slot.
func RequestSlotData(slot uint8) Message {
	m := Message{byte(OpRqSlData), slot, 0, 0}
	UpdateChecksum(m)
	return m
}

// MoveSlots builds an OPC_MOVE_SLOTS frame moving src to dst; moving a
// slot to itself ("NULL MOVE") is how a throttle takes ownership.
func MoveSlots(src, dst uint8) Message {
	m := Message{byte(OpMoveSlots), src, dst, 0}
	UpdateChecksum(m)
	return m
}

// SlotReadData views an OPC_SL_RD_DATA frame (14 bytes): the command
// station's full slot-table entry for a locomotive slot.
type SlotReadDataView struct{ m Message }

func AsSlotReadData(m Message) SlotReadDataView { return SlotReadDataView{m} }

func (v SlotReadDataView) Slot() uint8 { return v.m[2] }
func (v SlotReadDataView) Stat() uint8 { return v.m[3] }

func (v SlotReadDataView) IsBusy() bool   { return v.m[3]&SlBusy != 0 }
func (v SlotReadDataView) IsActive() bool { return v.m[3]&SlActive != 0 }
func (v SlotReadDataView) IsFree() bool   { return !v.IsBusy() && !v.IsActive() }

func (v SlotReadDataView) Address() uint16 {
	return (uint16(v.m[8]) << 7) | uint16(v.m[4])
}

func (v SlotReadDataView) IsEmergencyStop() bool { return v.m[5] == 0x01 }

func (v SlotReadDataView) Speed() uint8 {
	if v.m[5] > 1 {
		return v.m[5] - 1
	}
	return 0
}

func (v SlotReadDataView) Direction() Direction {
	if v.m[6]&SlDir != 0 {
		return DirectionForward
	}
	return DirectionReverse
}

func (v SlotReadDataView) F(n int) bool {
	switch {
	case n == 0:
		return v.m[6]&SlF0 != 0
	case n <= 4:
		return v.m[6]&(1<<(n-1)) != 0
	default: // 5..8
		return v.m[9]&(1<<(n-5)) != 0
	}
}

// MultiSense views an OPC_MULTI_SENSE frame (6 bytes, transponding).
type MultiSenseView struct{ m Message }

func AsMultiSense(m Message) MultiSenseView { return MultiSenseView{m} }

func (v MultiSenseView) IsTransponder() bool {
	t := v.m[1] & MultiSenseTypeMask
	return t == MultiSenseTypeTransponderGone || t == MultiSenseTypeTransponderPresent
}

func (v MultiSenseView) IsPresent() bool {
	return v.m[1]&MultiSenseTypeMask == MultiSenseTypeTransponderPresent
}

func (v MultiSenseView) SensorAddress() uint16 {
	return (uint16(v.m[1]&0x1F) << 7) | uint16(v.m[2]&0x7F)
}

func (v MultiSenseView) isAddressLong() bool {
	return v.m[3] != MultiSenseTransponderAddrShort
}

func (v MultiSenseView) TransponderAddress() uint16 {
	if v.isAddressLong() {
		return (uint16(v.m[3]&0x7F) << 7) | uint16(v.m[4]&0x7F)
	}
	return uint16(v.m[4] & 0x7F)
}

// MultiSenseLong views an OPC_MULTI_SENSE_LONG frame (9 bytes), the long
// transponder-address variant, adding a direction bit.
type MultiSenseLongView struct{ m Message }

func AsMultiSenseLong(m Message) MultiSenseLongView { return MultiSenseLongView{m} }

func (v MultiSenseLongView) IsTransponder() bool {
	t := v.m[2] & MultiSenseTypeMask
	return t == MultiSenseTypeTransponderGone || t == MultiSenseTypeTransponderPresent
}

func (v MultiSenseLongView) IsPresent() bool {
	return v.m[2]&MultiSenseTypeMask == MultiSenseTypeTransponderPresent
}

func (v MultiSenseLongView) SensorAddress() uint16 {
	return (uint16(v.m[2]&0x1F) << 7) | uint16(v.m[3]&0x7F)
}

func (v MultiSenseLongView) isAddressLong() bool {
	return v.m[4] != MultiSenseTransponderAddrShort
}

func (v MultiSenseLongView) TransponderAddress() uint16 {
	if v.isAddressLong() {
		return (uint16(v.m[4]&0x7F) << 7) | uint16(v.m[5]&0x7F)
	}
	return uint16(v.m[5] & 0x7F)
}

func (v MultiSenseLongView) TransponderDirection() Direction {
	if v.m[6]&0x40 != 0 {
		return DirectionForward
	}
	return DirectionReverse
}

// PeerXfer views an OPC_PEER_XFER frame, used by LNCV read/write sessions
// carried as Uhlenbrock peer-to-peer transfers.
type PeerXferView struct{ m Message }

func AsPeerXfer(m Message) PeerXferView { return PeerXferView{m} }
func (v PeerXferView) Data() []byte     { return v.m[2 : len(v.m)-1] }

// PeerXfer builds a raw OPC_PEER_XFER frame wrapping the given payload
// bytes (src/dst and sub-protocol specific content, caller-supplied).
func PeerXfer(payload []byte) Message {
	m := make(Message, 0, len(payload)+3)
	m = append(m, byte(OpPeerXfer), byte(len(payload)+3))
	m = append(m, payload...)
	m = append(m, 0)
	UpdateChecksum(m)
	return m
}

// WrSlData builds an OPC_WR_SL_DATA frame writing a full slot entry. Used
// to force a slot into a known state (e.g. during simulation or
// programming-track handling).
func WrSlData(slot uint8, stat, addrLow, speed, dirf, trk, ss2, addrHigh, snd, id1, id2 byte) Message {
	m := Message{
		byte(OpWrSlData), 14, slot, stat, addrLow, speed, dirf, trk, ss2, addrHigh, snd, id1, id2, 0,
	}
	UpdateChecksum(m)
	return m
}
