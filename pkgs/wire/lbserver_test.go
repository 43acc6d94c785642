package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLBServerHandler_ReceiveLine(t *testing.T) {
	var got []byte
	h := NewLBServerHandler()
	h.OnReceive = func(frame []byte) { got = frame }

	h.Receive([]byte("RECEIVE 81 7F\n"))

	assert.Equal(t, []byte{0x81, 0x7F}, got)
}

func TestLBServerHandler_ReceiveLineToleratesHexPrefix(t *testing.T) {
	var got []byte
	h := NewLBServerHandler()
	h.OnReceive = func(frame []byte) { got = frame }

	h.Receive([]byte("RECEIVE 0x81 0x7F\r\n"))

	assert.Equal(t, []byte{0x81, 0x7F}, got)
}

func TestLBServerHandler_SentOK(t *testing.T) {
	called := false
	h := NewLBServerHandler()
	h.OnSentOK = func() { called = true }

	h.Receive([]byte("SENT OK\n"))

	assert.True(t, called)
}

func TestLBServerHandler_Version(t *testing.T) {
	var banner string
	h := NewLBServerHandler()
	h.OnVersion = func(b string) { banner = b }

	h.Receive([]byte("VERSION LocoBuffer-Server 1.4\n"))

	assert.Equal(t, "LocoBuffer-Server 1.4", banner)
}

func TestLBServerHandler_MalformedHexIsDroppedNotFatal(t *testing.T) {
	called := false
	h := NewLBServerHandler()
	h.OnReceive = func(frame []byte) { called = true }

	h.Receive([]byte("RECEIVE ZZ\n"))

	assert.False(t, called)
}

func TestLBServerHandler_SplitAcrossReads(t *testing.T) {
	var got []byte
	h := NewLBServerHandler()
	h.OnReceive = func(frame []byte) { got = frame }

	h.Receive([]byte("RECEIVE 81 "))
	assert.Nil(t, got)
	h.Receive([]byte("7F\n"))

	assert.Equal(t, []byte{0x81, 0x7F}, got)
}

func TestEncodeSend(t *testing.T) {
	out := EncodeSend([]byte{0x81, 0x7F})
	assert.Equal(t, "SEND 81 7F\n", string(out))
}
