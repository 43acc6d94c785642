package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keskad/traintastic-go/pkgs/loconet"
	"github.com/keskad/traintastic-go/pkgs/loconet/message"
	"github.com/keskad/traintastic-go/pkgs/wire"
)

type fakeDecoderController struct {
	changed chan uint16
}

func (f *fakeDecoderController) DecoderChanged(address uint16, speed uint8, direction message.Direction, functions [29]bool) {
	f.changed <- address
}

func TestDeviceAssignsSlotAndAnswersLocoAdr(t *testing.T) {
	pipe := wire.NewPipeTransport()
	dev := NewDevice("test", pipe)
	require.NoError(t, dev.Start())
	t.Cleanup(func() { _ = dev.Stop() })

	k := loconet.New("test", pipe, loconet.Config{}, true)
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	changed := make(chan uint16, 1)
	k.SetDecoderController(&fakeDecoderController{changed: changed})

	k.SendToAddress(1234, func(slot uint8) message.Message {
		return message.LocoSpd(slot, 50)
	})

	select {
	case address := <-changed:
		assert.Equal(t, uint16(1234), address)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for simulated slot binding")
	}
}

func TestDeviceSlotExhaustionSendsLongAckFailure(t *testing.T) {
	pipe := wire.NewPipeTransport()
	dev := NewDevice("test", pipe)
	require.NoError(t, dev.Start())
	t.Cleanup(func() { _ = dev.Stop() })

	// Fill all 119 locomotive slots directly against the device, bypassing
	// the kernel's one-in-flight-frame pacing so the table fills quickly.
	// pipe.Out is the side a kernel writes outbound frames onto; the device
	// drains it and answers on pipe.In, mirroring the real transport.
	for addr := uint16(1); addr <= 119; addr++ {
		pipe.Out <- message.LocoAdr(addr)
		<-pipe.In // echo
		<-pipe.In // SL_RD_DATA
	}

	pipe.Out <- message.LocoAdr(120)
	<-pipe.In // echo

	select {
	case out := <-pipe.In:
		ack := message.AsLongAck(message.Message(out))
		assert.Equal(t, message.OpLocoAdr, ack.RespondingOpCode())
		assert.Equal(t, byte(0), ack.Ack1())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for slot exhaustion LONG_ACK")
	}
}

func TestDeviceLNCVProgrammingSession(t *testing.T) {
	pipe := wire.NewPipeTransport()
	dev := NewDevice("test", pipe)
	dev.RegisterModule(&Module{ModuleID: 7, ModuleAddress: 1, Values: map[uint16]uint16{3: 42}})
	require.NoError(t, dev.Start())
	t.Cleanup(func() { _ = dev.Stop() })

	k := loconet.New("test", pipe, loconet.Config{}, true)
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	results := make(chan uint16, 1)
	k.SetOnLNCVReadResponse(func(ok bool, lncv uint16, value uint16) {
		if ok {
			results <- value
		}
	})

	require.NoError(t, k.LNCVStart(7, 1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, k.LNCVRead(3))

	select {
	case value := <-results:
		assert.Equal(t, uint16(42), value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for LNCV read response")
	}
}
