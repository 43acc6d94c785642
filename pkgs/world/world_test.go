package world

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/loconet"
	"github.com/keskad/traintastic-go/pkgs/train"
	"github.com/keskad/traintastic-go/pkgs/wire"
)

func TestWorldArenaRegistersTrainsBlocksAndZones(t *testing.T) {
	w := New()
	defer w.Close()

	trainID, tr := w.NewTrain(1.0 / 87)
	require.NotNil(t, tr)
	assert.Equal(t, tr, w.Train(trainID))

	blockID, b := w.NewBlock("b1")
	require.NotNil(t, b)
	assert.Equal(t, b, w.Block(blockID))

	zoneID, z := w.NewZone("z1")
	require.NotNil(t, z)
	assert.Equal(t, z, w.Zone(zoneID))
}

func TestWorldAssignVehicleAndDecoderVehicle(t *testing.T) {
	w := New()
	defer w.Close()

	dec := decoder.New(nil, decoder.ProtocolDCC, 3, false)
	decoderID := w.RegisterDecoder(dec)

	_, err := w.DecoderVehicle(decoderID)
	assert.ErrorIs(t, err, ErrDecoderNotAssignedToAVehicle)

	_, tr := w.NewTrain(1.0 / 87)
	vehicle := &train.RailVehicle{Decoder: dec}
	tr.AddVehicle(vehicle)

	require.NoError(t, w.AssignVehicle(decoderID, tr, vehicle))

	got, err := w.DecoderVehicle(decoderID)
	require.NoError(t, err)
	assert.Equal(t, vehicle, got)
}

func TestWorldAssignVehicleUnknownDecoder(t *testing.T) {
	w := New()
	defer w.Close()

	_, tr := w.NewTrain(1.0 / 87)
	err := w.AssignVehicle(uuid.Nil, tr, &train.RailVehicle{})
	assert.ErrorIs(t, err, ErrUnknownDecoderAddress)
}

func TestInterfaceLifecycleOverPipeTransport(t *testing.T) {
	w := New()
	defer w.Close()

	transport := wire.NewPipeTransport()
	iface := NewLocoNetInterface(w, "test", transport, loconet.Config{}, true)

	var transitions []Status
	iface.SetOnStatusChanged(func(s Status) { transitions = append(transitions, s) })

	assert.Equal(t, StatusOffline, iface.Status())

	require.NoError(t, iface.SetOnline(true))
	assert.Equal(t, StatusOnline, iface.Status())

	require.NoError(t, iface.SetOnline(false))
	assert.Equal(t, StatusOffline, iface.Status())

	assert.Equal(t, []Status{StatusInitializing, StatusOnline, StatusOffline}, transitions)
}

func TestInterfaceBindIOEndpoints(t *testing.T) {
	w := New()
	defer w.Close()

	transport := wire.NewPipeTransport()
	iface := NewLocoNetInterface(w, "test", transport, loconet.Config{}, true)
	require.NoError(t, iface.SetOnline(true))
	defer iface.SetOnline(false)

	out := iface.BindOutput(5)
	assert.NotNil(t, out)

	in := iface.BindInput(7)
	assert.NotNil(t, in)

	ident := iface.BindIdentification(9)
	assert.NotNil(t, ident)

	// give the interface's bridge a moment to accept posted bus callbacks
	// (none fire in this test; this only exercises bind wiring).
	time.Sleep(time.Millisecond)
}
