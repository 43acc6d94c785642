// Package wire converts a byte-stream transport (serial, TCP, UDP, an
// in-process pipe) to and from discrete protocol frames for the command
// station kernels in pkgs/loconet and pkgs/xpressnet.
package wire

import (
	"fmt"
	"net"
	"time"

	goserial "github.com/daedaluz/goserial"
)

// Transport is the minimal capability a Kernel's IO handler needs from the
// underlying byte stream: open it, push bytes out, read bytes in, close it.
// Nothing above this interface may assume serial, TCP or UDP semantics.
type Transport interface {
	Open() error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// SerialConfig describes a serial port connection to a command station.
type SerialConfig struct {
	Device      string
	Baudrate    int
	FlowControl bool
}

// SerialTransport opens a local serial device (e.g. a LocoNet LocoBuffer or
// an XpressNet USB interface).
type SerialTransport struct {
	cfg  SerialConfig
	port *goserial.Port
}

func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	return &SerialTransport{cfg: cfg}
}

func (s *SerialTransport) Open() error {
	opts := goserial.NewOptions().SetReadTimeout(100 * time.Millisecond)
	port, err := goserial.Open(s.cfg.Device, opts)
	if err != nil {
		return fmt.Errorf("cannot open serial port %s: %w", s.cfg.Device, err)
	}
	s.port = port
	return nil
}

func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// TCPTransport is a stream transport (LocoNet-over-TCP, LI-USB network
// bridges, XpressNet interfaces exposed over a TCP bridge).
type TCPTransport struct {
	Address string
	conn    net.Conn
}

func NewTCPTransport(address string) *TCPTransport {
	return &TCPTransport{Address: address}
}

func (t *TCPTransport) Open() error {
	conn, err := net.Dial("tcp", t.Address)
	if err != nil {
		return fmt.Errorf("cannot dial TCP command station at %s: %w", t.Address, err)
	}
	t.conn = conn
	return nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *TCPTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *TCPTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }

// UDPTransport is a datagram transport, used by Z21 (§6: "UDP-framed
// binary; LocoNet frames are carried as payload inside Z21 LAN packets").
type UDPTransport struct {
	Address string
	conn    net.Conn
}

func NewUDPTransport(address string) *UDPTransport {
	return &UDPTransport{Address: address}
}

func (u *UDPTransport) Open() error {
	conn, err := net.Dial("udp", u.Address)
	if err != nil {
		return fmt.Errorf("cannot dial UDP command station at %s: %w", u.Address, err)
	}
	u.conn = conn
	return nil
}

func (u *UDPTransport) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

func (u *UDPTransport) Read(p []byte) (int, error)  { return u.conn.Read(p) }
func (u *UDPTransport) Write(p []byte) (int, error) { return u.conn.Write(p) }

// PipeTransport is an in-process transport backed by two byte channels. It
// is used by the simulator IO handler (pkgs/simulator) and by tests that
// need a Kernel without real hardware.
type PipeTransport struct {
	In  chan []byte
	Out chan []byte

	pending []byte
}

func NewPipeTransport() *PipeTransport {
	return &PipeTransport{
		In:  make(chan []byte, 64),
		Out: make(chan []byte, 64),
	}
}

func (p *PipeTransport) Open() error { return nil }

// Close unblocks any goroutine parked in Read and stops further Writes
// from being accepted. Safe to call once; a second Close will panic on
// the double channel-close, matching the usual Go convention.
func (p *PipeTransport) Close() error {
	close(p.In)
	close(p.Out)
	return nil
}

func (p *PipeTransport) Write(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	p.Out <- cp
	return len(data), nil
}

// Read blocks until at least one chunk queued on In is available.
func (p *PipeTransport) Read(buf []byte) (int, error) {
	if len(p.pending) == 0 {
		chunk, ok := <-p.In
		if !ok {
			return 0, fmt.Errorf("pipe closed")
		}
		p.pending = chunk
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}
