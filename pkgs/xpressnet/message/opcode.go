// Package message implements the XpressNet wire message family: the
// 4-bit-size header convention, checksum validation and typed builders
// for the locomotive instructions a command station kernel needs to send.
package message

// OpCode is an XpressNet frame's header byte: its high nibble identifies
// the instruction class, its low nibble is the number of data bytes that
// follow (not counting the header itself or the trailing checksum).
// Several instructions share a header and are disambiguated by their
// first data byte instead, mirroring LocoNet's D4 sub-opcode convention
// (see DB0Speed14/DB0FunctionGroup1 etc below).
type OpCode uint8

const (
	// OpEmergencyStopAll is the 2-byte "stop the whole layout" frame: no
	// data bytes, low nibble 0.
	OpEmergencyStopAll OpCode = 0x80

	// OpEmergencyStopLocomotive carries a single locomotive's address (2
	// data bytes: address high/low per the 14-bit addressing convention).
	OpEmergencyStopLocomotive OpCode = 0x92

	// OpTrackPower toggles track power; DB0 (0x80/0x81) selects off/on.
	OpTrackPower OpCode = 0x21

	// OpLocoInfo requests a locomotive's speed/direction/function state;
	// DB0 (0xF0) selects the "full info" sub-command, followed by the
	// queried address.
	OpLocoInfo OpCode = 0xE3

	// OpLocoInfoResponse is the command station's reply to OpLocoInfo: a
	// state byte (busy flag, speed-step family) and a speed/direction
	// byte, with no address field since it always answers the most
	// recently issued query.
	OpLocoInfoResponse OpCode = 0xE2

	// OpLocoDrive carries speed-and-direction and function-group
	// instructions; DB0 selects which of the two and, for speed, which
	// speed-step variant.
	OpLocoDrive OpCode = 0xE4
)

// DB0 sub-identification bytes carried as the first data byte of an
// OpLocoDrive frame, selecting the speed-step variant or function group.
const (
	DB0Speed14  = 0x10
	DB0Speed27  = 0x11
	DB0Speed28  = 0x12
	DB0Speed128 = 0x13

	DB0FunctionGroup1      = 0x20
	DB0FunctionGroup2      = 0x21
	DB0FunctionGroup3      = 0x22
	DB0RocoFunctionF13F20  = 0x23
	DB0SetFunctionState1   = 0x28
	DB0SetFunctionState2   = 0x29

	DB0TrackPowerOff = 0x80
	DB0TrackPowerOn  = 0x81
)

// AddressLongFlag marks the high byte of a 14-bit locomotive address as a
// long (4-digit) address; short addresses (1-99) are sent with this bit
// clear and the high byte 0.
const AddressLongFlag = 0xC0

// Function bit masks within a function-group data byte.
const (
	FnBit0 = 0x01
	FnBit1 = 0x02
	FnBit2 = 0x04
	FnBit3 = 0x08
	FnBit4 = 0x10
)
