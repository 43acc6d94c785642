// Package message implements the LocoNet wire message family: opcodes,
// frame sizing, checksum validation and typed accessors for the message
// kinds a command station kernel needs to send and receive.
package message

// OpCode identifies a LocoNet message's operation code, the first byte of
// every frame. Its top three bits (after the always-set MSB) classify the
// frame into one of four size families; see Size.
type OpCode uint8

const (
	// 2-byte messages.
	OpBusy  OpCode = 0x81
	OpGPOff OpCode = 0x82
	OpGPOn  OpCode = 0x83
	OpIdle  OpCode = 0x85

	// 4-byte messages.
	OpLocoSpd     OpCode = 0xA0
	OpLocoDirF    OpCode = 0xA1
	OpLocoSnd     OpCode = 0xA2
	OpLocoF9F12   OpCode = 0xA3
	OpSwReq       OpCode = 0xB0
	OpSwRep       OpCode = 0xB1
	OpInputRep    OpCode = 0xB2
	OpLongAck     OpCode = 0xB4
	OpSlotStat1   OpCode = 0xB5
	OpConsistFunc OpCode = 0xB6
	OpUnlinkSlots OpCode = 0xB8
	OpLinkSlots   OpCode = 0xB9
	OpMoveSlots   OpCode = 0xBA
	OpRqSlData    OpCode = 0xBB
	OpSwState     OpCode = 0xBC
	OpSwAck       OpCode = 0xBD
	OpLocoAdr     OpCode = 0xBF

	// 6-byte messages.
	OpMultiSense OpCode = 0xD0
	OpD4         OpCode = 0xD4 // carries LOCO_F13F19 / LOCO_F12F20F28 / LOCO_F21F27 sub-variants

	// Variable-length messages; second byte carries the frame length.
	OpMultiSenseLong OpCode = 0xE0
	OpPeerXfer       OpCode = 0xE5
	OpSlRdData       OpCode = 0xE7
	OpImmPacket      OpCode = 0xED
	OpWrSlData       OpCode = 0xEF
)

// D4 sub-opcode byte (fourth byte, index 3, of an OPC_D4 frame) distinguishing the
// F13-F19, F12/F20/F28 and F21-F27 function group variants, which all
// share the same top-level opcode and frame length.
const (
	D4SubF13F19   = 0x08
	D4SubF12F20F28 = 0x05
	D4SubF21F27   = 0x09
)

// Slot addresses with special meaning, per the LocoNet slot table layout.
const (
	SlotDispatch         = 0
	SlotLocoMin          = 1
	SlotLocoMax          = 119
	SlotFastClock        = 123
	SlotProgrammingTrack = 124
	SlotUnknown          = 255
)

const (
	SpeedStop = 0
	SpeedEStop = 1
	SpeedMin   = 2
	SpeedMax   = 127
)

// SLOT_STAT1 bits.
const (
	SlConUp  = 0x40
	SlBusy   = 0x20
	SlActive = 0x10
	SlConDn  = 0x08
)

// DIRF bits (direction + F0-F4).
const (
	SlDir = 0x20
	SlF0  = 0x10
	SlF4  = 0x08
	SlF3  = 0x04
	SlF2  = 0x02
	SlF1  = 0x01
)

// SND bits (F5-F8).
const (
	SlF5 = 0x01
	SlF6 = 0x02
	SlF7 = 0x04
	SlF8 = 0x08
)

// F9-F12 bits.
const (
	SlF9  = 0x01
	SlF10 = 0x02
	SlF11 = 0x04
	SlF12 = 0x08
)

// F13-F19 bits (D4/F13F19 variant).
const (
	SlF13 = 0x01
	SlF14 = 0x02
	SlF15 = 0x04
	SlF16 = 0x08
	SlF17 = 0x10
	SlF18 = 0x20
	SlF19 = 0x40
)

// F21-F27 bits (D4/F21F27 variant).
const (
	SlF21 = 0x01
	SlF22 = 0x02
	SlF23 = 0x04
	SlF24 = 0x08
	SlF25 = 0x10
	SlF26 = 0x20
	SlF27 = 0x40
)

// F12/F20/F28 bits (D4/F12F20F28 variant).
const (
	SlF12Alt = 0x10
	SlF20    = 0x20
	SlF28    = 0x40
)

// SW_REQ / SW_REP second-byte bits.
const (
	Sw2On  = 0x10
	Sw2Dir = 0x20
)

const (
	MultiSenseTypeMask               = 0xE0
	MultiSenseTypeTransponderGone    = 0x00
	MultiSenseTypeTransponderPresent = 0x20
	MultiSenseTransponderAddrShort   = 0xFD
)
