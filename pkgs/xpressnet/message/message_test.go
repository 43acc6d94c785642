package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmergencyStopAllIsValid(t *testing.T) {
	m := EmergencyStopAll()
	assert.True(t, IsValid(m))
	assert.Equal(t, 2, len(m))
}

func TestEmergencyStopLocomotiveShortAddress(t *testing.T) {
	m := EmergencyStopLocomotive(42, false)
	assert.True(t, IsValid(m))
	assert.Equal(t, byte(0), m[1])
	assert.Equal(t, byte(42), m[2])
}

func TestEmergencyStopLocomotiveLongAddress(t *testing.T) {
	m := EmergencyStopLocomotive(1234, true)
	assert.True(t, IsValid(m))
	assert.Equal(t, byte(AddressLongFlag|(1234>>8)), m[1])
	assert.Equal(t, byte(1234), m[2])
}

func TestSpeedAndDirection128Step(t *testing.T) {
	m := SpeedAndDirection(3, false, 128, 100, DirectionForward, false)
	assert.True(t, IsValid(m))
	assert.Equal(t, byte(DB0Speed128), m[1])
	assert.Equal(t, byte(100|0x80), m[4])
}

func TestSpeedAndDirection14StepCarriesF0(t *testing.T) {
	m := SpeedAndDirection(3, false, 14, 10, DirectionReverse, true)
	assert.True(t, IsValid(m))
	assert.Equal(t, byte(DB0Speed14), m[1])
	assert.Equal(t, byte(10|0x10), m[4])
}

func TestFunctionGroup1PacksF0SeparatelyFromF1F4(t *testing.T) {
	var fns [29]bool
	fns[0] = true
	fns[2] = true
	m := FunctionGroup1(3, false, fns)
	assert.True(t, IsValid(m))
	assert.Equal(t, byte(DB0FunctionGroup1), m[1])
	assert.Equal(t, byte(0x10|0x02), m[4])
}

func TestFunctionGroup2PacksF5F8(t *testing.T) {
	var fns [29]bool
	fns[5] = true
	fns[8] = true
	m := FunctionGroup2(3, false, fns)
	assert.Equal(t, byte(0x01|0x08), m[4])
}

func TestSizerRecognisesFrameBoundary(t *testing.T) {
	m := SpeedAndDirection(3, false, 128, 50, DirectionForward, false)
	sizer := WireSizer{}
	size, known := sizer.Size(m)
	assert.True(t, known)
	assert.Equal(t, len(m), size)
	assert.True(t, sizer.Valid(m))
}

func TestIsValidRejectsCorruptedChecksum(t *testing.T) {
	m := EmergencyStopLocomotive(42, false)
	m[len(m)-1] ^= 0xFF
	assert.False(t, IsValid(m))
}

func TestLocoInfoViewDecodesSpeedAndDirection(t *testing.T) {
	// A hand-built 128-step LOCO_INFO response: busy=0, speed-step field
	// = 128-step (0b100), speed 77 with the forward direction bit set.
	raw := Message{byte(OpLocoInfoResponse), 0x04, 0x80 | 77, 0}
	UpdateChecksum(raw)
	view := AsLocoInfoView(raw)
	assert.False(t, view.Busy())
	assert.Equal(t, uint8(128), view.SpeedSteps())
	speed, dir := view.Speed()
	assert.Equal(t, uint8(77), speed)
	assert.Equal(t, DirectionForward, dir)
}
