package message

import "testing"

func TestXorSum(t *testing.T) {
	cases := []struct {
		input    []byte
		expected byte
	}{
		{[]byte{}, 0},
		{[]byte{0x00}, 0x00},
		{[]byte{0x01}, 0x01},
		{[]byte{0x01, 0x02}, 0x03},
		{[]byte{0xFF, 0x01}, 0xFE},
		{[]byte{0xAA, 0x55}, 0xFF},
	}

	for _, c := range cases {
		got := XorSum(c.input)
		if got != c.expected {
			t.Errorf("XorSum(%v) = %02X; want %02X", c.input, got, c.expected)
		}
	}
}

func TestFixedChecksumConstants(t *testing.T) {
	// These checksum values are the well-known fixed values for the
	// no-payload 2-byte LocoNet messages.
	cases := []struct {
		name     string
		frame    Message
		expected byte
	}{
		{"idle", Idle(), 0x7A},
		{"gpon", GlobalPowerOn(), 0x7C},
		{"gpoff", GlobalPowerOff(), 0x7D},
		{"busy", Busy(), 0x7E},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.frame[len(c.frame)-1]
			if got != c.expected {
				t.Errorf("%s checksum = %02X; want %02X", c.name, got, c.expected)
			}
			if !IsValid(c.frame) {
				t.Errorf("%s: expected frame to be valid", c.name)
			}
		})
	}
}

func TestSizeByOpcodeFamily(t *testing.T) {
	cases := []struct {
		name  string
		first byte
		extra []byte
		size  int
		known bool
	}{
		{"2-byte family", byte(OpIdle), nil, 2, true},
		{"4-byte family", byte(OpLocoSpd), nil, 4, true},
		{"6-byte family", byte(OpMultiSense), nil, 6, true},
		{"variable family known", byte(OpSlRdData), []byte{14}, 14, true},
		{"variable family unknown (no length byte yet)", byte(OpSlRdData), nil, 0, false},
		{"invalid leading byte", 0x00, nil, -1, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := append([]byte{c.first}, c.extra...)
			size, known := Size(buf)
			if known != c.known {
				t.Fatalf("known = %v; want %v", known, c.known)
			}
			if known && size != c.size {
				t.Errorf("size = %d; want %d", size, c.size)
			}
		})
	}
}

func TestIsValidRejectsWrongLength(t *testing.T) {
	m := GlobalPowerOn()
	truncated := m[:1]
	if IsValid(truncated) {
		t.Error("expected truncated frame to be invalid")
	}
}

func TestIsValidRejectsBadChecksum(t *testing.T) {
	m := GlobalPowerOn()
	m[len(m)-1] ^= 0xFF
	if IsValid(m) {
		t.Error("expected corrupted checksum to be invalid")
	}
}

func TestLocoAdrRoundTrip(t *testing.T) {
	m := LocoAdr(1234)
	if !IsValid(m) {
		t.Fatal("expected valid frame")
	}
	got := AsLocoAdr(m).Address()
	if got != 1234 {
		t.Errorf("address = %d; want 1234", got)
	}
}

func TestLocoDirFRoundTrip(t *testing.T) {
	m := LocoDirF(5, DirectionForward, true, false, true, false, false)
	if !IsValid(m) {
		t.Fatal("expected valid frame")
	}
	v := AsLocoDirF(m)
	if v.Slot() != 5 {
		t.Errorf("slot = %d; want 5", v.Slot())
	}
	if v.Direction() != DirectionForward {
		t.Error("expected forward direction")
	}
	if !v.F(0) || v.F(1) || !v.F(2) || v.F(3) {
		t.Error("unexpected function bits")
	}
}

func TestLocoF13F19RoundTrip(t *testing.T) {
	m := LocoF13F19(7, true, false, false, false, false, false, true)
	v := AsLocoF13F19(m)
	if v.Slot() != 7 {
		t.Errorf("slot = %d; want 7", v.Slot())
	}
	if !v.F(13) || v.F(14) || !v.F(19) {
		t.Error("unexpected function bits")
	}
}

func TestLongAckRespondingOpCode(t *testing.T) {
	m := LongAck(OpLocoAdr, 0x01)
	v := AsLongAck(m)
	if v.RespondingOpCode() != OpLocoAdr {
		t.Errorf("respondingOpCode = %#x; want %#x", v.RespondingOpCode(), OpLocoAdr)
	}
}

func TestSwitchRequestRoundTrip(t *testing.T) {
	m := SwitchRequest(123, true)
	v := AsSwitchRequest(m)
	if v.FullAddress() != 123 {
		t.Errorf("fullAddress = %d; want 123", v.FullAddress())
	}
	if !v.On() {
		t.Error("expected on() to be true")
	}
}

func TestIsLocoSlot(t *testing.T) {
	cases := []struct {
		slot uint8
		want bool
	}{
		{0, false},
		{1, true},
		{119, true},
		{120, false},
		{123, false},
		{124, false},
		{255, false},
	}
	for _, c := range cases {
		if got := IsLocoSlot(c.slot); got != c.want {
			t.Errorf("IsLocoSlot(%d) = %v; want %v", c.slot, got, c.want)
		}
	}
}
