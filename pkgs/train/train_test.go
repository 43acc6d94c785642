package train

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keskad/traintastic-go/pkgs/decoder"
)

type noopController struct{}

func (noopController) Protocols() []decoder.Protocol                     { return nil }
func (noopController) AddressMinMax(decoder.Protocol) (uint16, uint16)   { return 1, 9999 }
func (noopController) DecoderChanged(*decoder.Decoder, decoder.ChangeFlags, int) {}

func linearCurve(maxSpeed float64) *SpeedCurve {
	c := &SpeedCurve{}
	var values [speedSteps]float64
	for i := 0; i < speedSteps; i++ {
		values[i] = maxSpeed * float64(i+1) / speedSteps
	}
	c.SetValues(values)
	return c
}

func newPoweredVehicle(address uint16, maxSpeed float64) *RailVehicle {
	return &RailVehicle{
		Decoder:    decoder.New(noopController{}, decoder.ProtocolDCC, address, true),
		SpeedCurve: linearCurve(maxSpeed),
	}
}

func TestAcquireActivatesTrain(t *testing.T) {
	tr := New(1.0 / 87)
	tr.AddVehicle(newPoweredVehicle(3, 10))

	th, err := tr.Acquire(false)
	assert.NoError(t, err)
	assert.True(t, tr.Active())

	_, err = tr.Acquire(false)
	assert.ErrorIs(t, err, ErrAlreadyAcquired)

	th.Release()
}

func TestSetDirectionRequiresStopped(t *testing.T) {
	tr := New(1.0 / 87)
	tr.AddVehicle(newPoweredVehicle(3, 10))
	_, err := tr.Acquire(false)
	assert.NoError(t, err)

	assert.NoError(t, tr.SetThrottleSpeed(5))
	tr.mu.Lock()
	tr.lastSetSpeedPoint = tr.throttleSpeedPoint
	tr.mu.Unlock()

	err = tr.SetDirection(decoder.DirectionReverse)
	assert.ErrorIs(t, err, ErrTrainMustBeStoppedToChangeDirection)
}

func TestSetDirectionSucceedsWhenStopped(t *testing.T) {
	tr := New(1.0 / 87)
	tr.AddVehicle(newPoweredVehicle(3, 10))
	_, err := tr.Acquire(false)
	assert.NoError(t, err)

	assert.NoError(t, tr.SetDirection(decoder.DirectionReverse))
	assert.Equal(t, decoder.DirectionReverse, tr.Direction())
}

func TestEmergencyStopClearsSpeedPoints(t *testing.T) {
	tr := New(1.0 / 87)
	tr.AddVehicle(newPoweredVehicle(3, 10))
	_, _ = tr.Acquire(false)

	tr.SetEmergencyStop(true)
	assert.True(t, tr.IsStopped())
}

func TestRemoveVehicleNotInTrain(t *testing.T) {
	tr := New(1.0 / 87)
	v := newPoweredVehicle(3, 10)
	err := tr.RemoveVehicle(v)
	assert.ErrorIs(t, err, ErrVehicleNotAssignedToATrain)
}
