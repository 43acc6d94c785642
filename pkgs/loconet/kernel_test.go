package loconet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keskad/traintastic-go/pkgs/loconet/message"
	"github.com/keskad/traintastic-go/pkgs/wire"
)

func newTestKernel(t *testing.T) (*Kernel, *wire.PipeTransport) {
	t.Helper()
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{}, true)
	if err := k.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = k.Stop() })
	return k, pipe
}

func TestKernelGlobalPowerCallback(t *testing.T) {
	k, pipe := newTestKernel(t)

	var got bool
	done := make(chan struct{}, 1)
	k.SetOnGlobalPowerChanged(func(on bool) {
		got = on
		done <- struct{}{}
	})

	pipe.In <- message.GlobalPowerOn()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
	assert.True(t, got)
}

func TestKernelSendWritesFrameToTransport(t *testing.T) {
	k, pipe := newTestKernel(t)

	k.Send(message.Idle(), HighPriority)

	select {
	case out := <-pipe.Out:
		assert.True(t, message.IsValid(message.Message(out)))
		assert.Equal(t, message.OpIdle, message.Message(out).OpCode())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestKernelSlotReadDataBindsAddress(t *testing.T) {
	k, pipe := newTestKernel(t)

	changed := make(chan uint16, 1)
	fake := &fakeDecoderController{changed: changed}
	k.SetDecoderController(fake)

	slotData := message.Message{
		byte(message.OpSlRdData), 14, 5, message.SlActive, 0x12, 0x02, byte(message.SlDir), 0, 0, 0x09, 0, 0, 0, 0,
	}
	message.UpdateChecksum(slotData)
	pipe.In <- slotData

	var address uint16
	select {
	case address = <-changed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoder callback")
	}

	slot := k.getLocoSlotByAddress(address)
	assert.Equal(t, uint8(5), slot)
}

type fakeDecoderController struct {
	changed chan uint16
}

func (f *fakeDecoderController) DecoderChanged(address uint16, speed uint8, direction message.Direction, functions [29]bool) {
	f.changed <- address
}

func TestSendQueueDropsWhenFull(t *testing.T) {
	var q sendQueue
	big := make(message.Message, sendQueueCapacity)
	ok := q.append(big)
	assert.True(t, ok)

	ok = q.append(message.Message{0x01})
	assert.False(t, ok, "expected append to fail once capacity exceeded")
}

func TestSendQueuePopFIFO(t *testing.T) {
	var q sendQueue
	a := message.Idle()
	b := message.GlobalPowerOn()
	q.append(a)
	q.append(b)

	assert.Equal(t, a, q.front())
	q.pop()
	assert.Equal(t, b, q.front())
}
