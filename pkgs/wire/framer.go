package wire

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Sizer knows how to recognise a single message family's framing: given the
// bytes received so far (starting at a candidate frame boundary), it reports
// how many bytes the frame needs and whether that length is already known
// from the leading byte(s), then validates a complete candidate frame.
type Sizer interface {
	// Size returns the number of bytes the frame starting at buf[0] is
	// expected to occupy, and whether that could be determined from the
	// bytes available so far. known is false when more bytes are needed
	// before the size itself can be computed.
	Size(buf []byte) (size int, known bool)

	// Valid reports whether a complete, correctly sized frame passes
	// whatever integrity check the family defines (e.g. an XOR checksum).
	Valid(frame []byte) bool
}

// Handler turns a raw byte stream into discrete, validated frames. It
// implements "maximal munch with invalid-prefix skip": it always tries to
// read the longest frame it can recognise at the current position, and if
// that candidate fails validation, it discards exactly one byte and
// retries from the new position. Partial frames at the end of the buffer
// are preserved for the next Receive call.
type Handler struct {
	sizer Sizer

	mu      sync.Mutex
	buf     []byte
	onFrame func(frame []byte)
	// onDropped is invoked at most once per Receive call with the total
	// number of bytes that were skipped while searching for a valid frame.
	onDropped func(n int)
}

// NewHandler builds a Handler for the given family-specific Sizer. onFrame
// is called synchronously, in order, for every validated frame found.
// onDropped may be nil if dropped-byte accounting isn't needed.
func NewHandler(sizer Sizer, onFrame func(frame []byte), onDropped func(n int)) *Handler {
	return &Handler{
		sizer:     sizer,
		onFrame:   onFrame,
		onDropped: onDropped,
	}
}

// Receive appends newly read bytes to the internal buffer and extracts as
// many complete, valid frames as it can find.
func (h *Handler) Receive(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf = append(h.buf, data...)
	dropped := 0

	for {
		if len(h.buf) == 0 {
			break
		}

		size, known := h.sizer.Size(h.buf)
		if !known {
			// Not enough bytes yet to even know the frame length.
			break
		}
		if size <= 0 {
			// The leading byte can never start a valid frame; skip it.
			h.buf = h.buf[1:]
			dropped++
			continue
		}
		if len(h.buf) < size {
			// Size is known, but the full frame hasn't arrived yet.
			break
		}

		candidate := h.buf[:size]
		if !h.sizer.Valid(candidate) {
			h.buf = h.buf[1:]
			dropped++
			continue
		}

		frame := append([]byte(nil), candidate...)
		h.buf = h.buf[size:]
		if h.onFrame != nil {
			h.onFrame(frame)
		}
	}

	if dropped > 0 {
		log.WithField("bytes", dropped).Debug("wire: dropped invalid prefix while framing")
		if h.onDropped != nil {
			h.onDropped(dropped)
		}
	}
}

// Reset discards any partially accumulated frame, so stale bytes are not
// stitched onto bytes from a fresh transport. The kernels in this module
// do not call it.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
}

// Pending returns a copy of the bytes currently buffered but not yet
// recognised as a complete frame. Intended for diagnostics/tests only.
func (h *Handler) Pending() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.buf...)
}
