package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeController struct {
	changes        ChangeFlags
	functionNumber int
	calls          int
}

func (f *fakeController) Protocols() []Protocol { return []Protocol{ProtocolDCC} }
func (f *fakeController) AddressMinMax(Protocol) (uint16, uint16) { return 1, 9999 }
func (f *fakeController) DecoderChanged(dec *Decoder, changes ChangeFlags, functionNumber int) {
	f.changes = changes
	f.functionNumber = functionNumber
	f.calls++
}

func TestSetThrottleRejectsOutOfRange(t *testing.T) {
	ctrl := &fakeController{}
	d := New(ctrl, ProtocolDCC, 3, true)

	assert.Error(t, d.SetThrottle(1.5))
	assert.Error(t, d.SetThrottle(-0.1))
	assert.Equal(t, 0, ctrl.calls)
}

func TestSetThrottleNotifiesController(t *testing.T) {
	ctrl := &fakeController{}
	d := New(ctrl, ProtocolDCC, 3, true)

	assert.NoError(t, d.SetThrottle(0.5))
	assert.Equal(t, 0.5, d.Throttle())
	assert.Equal(t, ChangeThrottle, ctrl.changes)
}

func TestEmergencyStopZeroesThrottle(t *testing.T) {
	ctrl := &fakeController{}
	d := New(ctrl, ProtocolDCC, 3, true)
	_ = d.SetThrottle(0.8)

	d.SetEmergencyStop(true)
	assert.True(t, d.EmergencyStop())
	assert.Equal(t, 0.0, d.Throttle())
}

func TestSetFunctionTracksTriState(t *testing.T) {
	ctrl := &fakeController{}
	d := New(ctrl, ProtocolDCC, 3, true)

	assert.Equal(t, TriUndefined, d.Function(3))
	assert.NoError(t, d.SetFunction(3, true))
	assert.Equal(t, TriTrue, d.Function(3))
	assert.Equal(t, 3, ctrl.functionNumber)

	assert.Error(t, d.SetFunction(99, true))
}

func TestThrottleSpeedStepRoundTrip(t *testing.T) {
	assert.Equal(t, uint8(0), ThrottleToSpeedStep(0, 126))
	assert.Equal(t, uint8(126), ThrottleToSpeedStep(1, 126))
	assert.Equal(t, uint8(63), ThrottleToSpeedStep(0.5, 126))
	assert.InDelta(t, 0.5, SpeedStepToThrottle(63, 126), 0.01)
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionReverse, DirectionForward.Opposite())
	assert.Equal(t, DirectionForward, DirectionReverse.Opposite())
	assert.Equal(t, DirectionUnknown, DirectionUnknown.Opposite())
}
