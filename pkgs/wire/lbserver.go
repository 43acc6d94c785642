package wire

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LBServerHandler frames the line-oriented LocoBuffer-Server text protocol
// instead of raw binary LocoNet frames: each line is either a command
// ("SEND <hex bytes>"), a received frame ("RECEIVE <hex bytes>"), an
// acknowledgement ("SENT OK") or a banner ("VERSION ..."). Lines are
// terminated by LF, optionally preceded by CR.
type LBServerHandler struct {
	buf []byte

	OnReceive func(frame []byte)
	OnSentOK  func()
	OnVersion func(banner string)
}

func NewLBServerHandler() *LBServerHandler {
	return &LBServerHandler{}
}

// Receive splits newly read bytes into lines and dispatches each complete
// one. Malformed hex in a RECEIVE line is logged and skipped rather than
// treated as a fatal framing error, since the text protocol has no
// checksum of its own to validate against.
func (l *LBServerHandler) Receive(data []byte) {
	l.buf = append(l.buf, data...)

	for {
		idx := bytes.IndexByte(l.buf, '\n')
		if idx < 0 {
			break
		}
		line := l.buf[:idx]
		l.buf = l.buf[idx+1:]
		line = bytes.TrimRight(line, "\r")
		l.dispatch(string(line))
	}
}

func (l *LBServerHandler) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "RECEIVE "):
		hexPart := strings.TrimSpace(strings.TrimPrefix(line, "RECEIVE "))
		frame, err := decodeTolerantHex(hexPart)
		if err != nil {
			log.WithError(err).WithField("line", line).Warn("lbserver: malformed RECEIVE line, dropping")
			return
		}
		if l.OnReceive != nil {
			l.OnReceive(frame)
		}
	case strings.HasPrefix(line, "SENT OK"):
		if l.OnSentOK != nil {
			l.OnSentOK()
		}
	case strings.HasPrefix(line, "VERSION "):
		if l.OnVersion != nil {
			l.OnVersion(strings.TrimPrefix(line, "VERSION "))
		}
	default:
		log.WithField("line", line).Debug("lbserver: ignoring unrecognised line")
	}
}

// EncodeSend builds a "SEND <hex>" line for a LocoNet frame, terminated
// with a single LF, ready to be written to the transport.
func EncodeSend(frame []byte) []byte {
	var b strings.Builder
	b.WriteString("SEND ")
	for i, c := range frame {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// decodeTolerantHex accepts byte pairs separated by any run of whitespace,
// with or without a "0x" prefix per token, matching the loose formatting
// real LocoBuffer-Server builds are known to emit.
func decodeTolerantHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(f, "0x")
		f = strings.TrimPrefix(f, "0X")
		if len(f) != 2 {
			return nil, fmt.Errorf("malformed hex byte token %q", f)
		}
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("malformed hex byte token %q: %w", f, err)
		}
		out = append(out, b[0])
	}
	return out, nil
}
