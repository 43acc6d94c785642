package xpressnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/wire"
	"github.com/keskad/traintastic-go/pkgs/xpressnet/message"
)

func TestDecoderChangedSendsSpeedAndDirectionFor128Step(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{DefaultSpeedSteps: 128})
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	dec := decoder.New(k, decoder.ProtocolDCC, 3, false)
	require.NoError(t, dec.SetThrottle(1.0))

	select {
	case raw := <-pipe.Out:
		m := message.Message(raw)
		assert.Equal(t, byte(message.DB0Speed128), m[1])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drive instruction")
	}
}

func TestDecoderChangedUses14StepForConfiguredAddress(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{DefaultSpeedSteps: 128})
	k.SetSpeedSteps(3, 14)
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	dec := decoder.New(k, decoder.ProtocolDCC, 3, false)
	require.NoError(t, dec.SetThrottle(0.5))

	select {
	case raw := <-pipe.Out:
		m := message.Message(raw)
		assert.Equal(t, byte(message.DB0Speed14), m[1])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drive instruction")
	}
}

func TestDecoderChangedSendsEmergencyStopCommandWhenEnabled(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{UseEmergencyStopLocomotiveCommand: true})
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	dec := decoder.New(k, decoder.ProtocolDCC, 42, false)
	dec.SetEmergencyStop(true)

	select {
	case raw := <-pipe.Out:
		m := message.Message(raw)
		assert.Equal(t, message.OpEmergencyStopLocomotive, m.OpCode())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emergency stop instruction")
	}
}

func TestDecoderChangedPicksFunctionGroupByNumber(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{})
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	dec := decoder.New(k, decoder.ProtocolDCC, 7, false)
	require.NoError(t, dec.SetFunction(6, true))

	select {
	case raw := <-pipe.Out:
		m := message.Message(raw)
		assert.Equal(t, byte(message.DB0FunctionGroup2), m[1])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for function group instruction")
	}
}

func TestDecoderChangedDropsRocoExtensionWhenNotEnabled(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{})
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	dec := decoder.New(k, decoder.ProtocolDCC, 7, false)
	require.NoError(t, dec.SetFunction(15, true))

	select {
	case <-pipe.Out:
		t.Fatal("expected no frame: Roco F13-F20 extension is disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestLocoInfoDispatchesResponseToLastRequestedAddress(t *testing.T) {
	pipe := wire.NewPipeTransport()
	k := New("test", pipe, Config{})
	require.NoError(t, k.Start())
	t.Cleanup(func() { _ = k.Stop() })

	got := make(chan uint16, 1)
	k.SetOnLocoInfo(func(address uint16, view message.LocoInfoView) {
		got <- address
	})

	k.RequestLocoInfo(99, false)

	resp := message.Message{byte(message.OpLocoInfoResponse), 0x04, 0x80 | 10, 0}
	message.UpdateChecksum(resp)
	pipe.In <- resp

	select {
	case address := <-got:
		assert.Equal(t, uint16(99), address)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for loco info callback")
	}
}
