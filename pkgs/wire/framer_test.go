package wire

import "testing"

// fixedSizer treats every frame as N bytes, valid only if the last byte
// equals the XOR of the preceding ones. It stands in for a real LocoNet
// Sizer in these framing tests.
type fixedSizer struct {
	n int
}

func (f fixedSizer) Size(buf []byte) (int, bool) {
	if len(buf) == 0 {
		return 0, false
	}
	return f.n, true
}

func (f fixedSizer) Valid(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	var sum byte
	for _, b := range frame[:len(frame)-1] {
		sum ^= b
	}
	return sum == frame[len(frame)-1]
}

func frame3(a, b byte) []byte {
	return []byte{a, b, a ^ b}
}

func TestHandlerExtractsSingleFrame(t *testing.T) {
	var got [][]byte
	h := NewHandler(fixedSizer{n: 3}, func(f []byte) {
		got = append(got, f)
	}, nil)

	h.Receive(frame3(0x01, 0x02))

	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if got[0][0] != 0x01 || got[0][1] != 0x02 {
		t.Errorf("unexpected frame contents: %v", got[0])
	}
}

func TestHandlerSkipsInvalidPrefix(t *testing.T) {
	var got [][]byte
	var dropped int
	h := NewHandler(fixedSizer{n: 3}, func(f []byte) {
		got = append(got, f)
	}, func(n int) {
		dropped = n
	})

	// One garbage byte, then a valid frame.
	data := append([]byte{0xFF}, frame3(0x01, 0x02)...)
	h.Receive(data)

	if len(got) != 1 {
		t.Fatalf("expected 1 frame after skipping garbage, got %d", len(got))
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped byte, got %d", dropped)
	}
}

func TestHandlerPreservesPartialFrame(t *testing.T) {
	var got [][]byte
	h := NewHandler(fixedSizer{n: 3}, func(f []byte) {
		got = append(got, f)
	}, nil)

	full := frame3(0x01, 0x02)
	h.Receive(full[:2])
	if len(got) != 0 {
		t.Fatalf("expected no frames from partial data, got %d", len(got))
	}
	if len(h.Pending()) != 2 {
		t.Errorf("expected 2 bytes pending, got %d", len(h.Pending()))
	}

	h.Receive(full[2:])
	if len(got) != 1 {
		t.Fatalf("expected 1 frame after completing partial data, got %d", len(got))
	}
}

func TestHandlerMultipleFramesInOneRead(t *testing.T) {
	var got [][]byte
	h := NewHandler(fixedSizer{n: 3}, func(f []byte) {
		got = append(got, f)
	}, nil)

	data := append(frame3(0x01, 0x02), frame3(0x03, 0x04)...)
	h.Receive(data)

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
}

func TestHandlerReset(t *testing.T) {
	h := NewHandler(fixedSizer{n: 3}, func([]byte) {}, nil)
	h.Receive([]byte{0x01, 0x02})
	if len(h.Pending()) == 0 {
		t.Fatalf("expected pending bytes before reset")
	}
	h.Reset()
	if len(h.Pending()) != 0 {
		t.Errorf("expected no pending bytes after reset")
	}
}
