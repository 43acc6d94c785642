// Package xpressnet implements the XpressNet command station kernel: a
// decoder.Controller that turns locomotive state changes into the
// header+data+XOR-checksum frames Lenz-compatible command stations speak,
// selecting the narrowest wire instruction for whatever changed.
package xpressnet

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/wire"
	"github.com/keskad/traintastic-go/pkgs/xpressnet/message"
)

// Config is the set of user-adjustable kernel behaviors, the Go-side
// equivalent of the original XpressNet command station's per-vendor
// boolean properties. pkgs/config has no fields for it; callers build it
// directly.
type Config struct {
	// DefaultSpeedSteps is the speed-step family used for any decoder
	// without a per-address override: 14, 27, 28 or 128.
	DefaultSpeedSteps uint8

	// UseEmergencyStopLocomotiveCommand sends the dedicated single-
	// locomotive emergency stop instruction instead of a zero-speed
	// drive instruction when a decoder's EmergencyStop flag latches.
	UseEmergencyStopLocomotiveCommand bool

	// UseRocoF13F20Command opts into the vendor F13-F20 extension; when
	// false, function numbers above 12 are logged and dropped, matching
	// command stations that do not understand the extension.
	UseRocoF13F20Command bool
}

func (c Config) speedStepsOrDefault() uint8 {
	switch c.DefaultSpeedSteps {
	case 14, 27, 28, 128:
		return c.DefaultSpeedSteps
	default:
		return 128
	}
}

// Kernel drives a single XpressNet command station connection. Unlike
// LocoNet's shared bus, XpressNet is a polled master/slave link: the PC
// is one bus participant and every request gets a direct response, so
// the kernel does not need echo/response pacing, only a transport and a
// frame demultiplexer.
type Kernel struct {
	logID     string
	transport wire.Transport
	handler   *wire.Handler
	cfg       Config

	mu                 sync.Mutex
	speedStepsByAddr   map[uint16]uint8
	lastRequestAddress uint16

	onLocoInfo func(address uint16, view message.LocoInfoView)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Kernel bound to the given transport. The kernel does not
// open the transport or start its IO loop until Start is called.
func New(logID string, transport wire.Transport, cfg Config) *Kernel {
	k := &Kernel{
		logID:            logID,
		transport:        transport,
		cfg:              cfg,
		speedStepsByAddr: make(map[uint16]uint8),
		stopCh:           make(chan struct{}),
	}
	k.handler = wire.NewHandler(message.WireSizer{}, k.onFrame, k.onDropped)
	return k
}

// SetSpeedSteps overrides the speed-step family used for address,
// bypassing Config.DefaultSpeedSteps. Needed because decoder.Decoder
// itself carries no notion of speed-step count.
func (k *Kernel) SetSpeedSteps(address uint16, steps uint8) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.speedStepsByAddr[address] = steps
}

func (k *Kernel) speedStepsFor(address uint16) uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if steps, ok := k.speedStepsByAddr[address]; ok {
		return steps
	}
	return k.cfg.speedStepsOrDefault()
}

// SetOnLocoInfo installs the callback invoked whenever the command
// station reports a locomotive's state in response to a LocoInfoRequest.
func (k *Kernel) SetOnLocoInfo(f func(address uint16, view message.LocoInfoView)) {
	k.onLocoInfo = f
}

// Start opens the transport and begins the read loop.
func (k *Kernel) Start() error {
	if err := k.transport.Open(); err != nil {
		return fmt.Errorf("xpressnet[%s]: cannot open transport: %w", k.logID, err)
	}
	k.wg.Add(1)
	go k.readLoop()
	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (k *Kernel) Stop() error {
	close(k.stopCh)
	err := k.transport.Close()
	k.wg.Wait()
	return err
}

func (k *Kernel) readLoop() {
	defer k.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-k.stopCh:
			return
		default:
		}
		n, err := k.transport.Read(buf)
		if err != nil {
			log.WithError(err).WithField("logId", k.logID).Warn("xpressnet: transport read error")
			return
		}
		if n > 0 {
			k.handler.Receive(buf[:n])
		}
	}
}

func (k *Kernel) onDropped(n int) {
	log.WithField("logId", k.logID).WithField("bytes", n).Debug("xpressnet: dropped invalid prefix bytes")
}

func (k *Kernel) onFrame(frame []byte) {
	msg := message.Message(frame)
	log.WithField("logId", k.logID).WithField("frame", msg.String()).Debug("xpressnet: received")

	if msg.OpCode() != message.OpLocoInfoResponse {
		return
	}
	// The response carries no address of its own, so it is matched to
	// whichever address the most recent RequestLocoInfo queried; callers
	// are expected to issue one request at a time and wait for the reply
	// before the next.
	k.mu.Lock()
	address := k.lastRequestAddress
	k.mu.Unlock()
	if k.onLocoInfo != nil {
		k.onLocoInfo(address, message.AsLocoInfoView(msg))
	}
}

// write sends a fully-built frame, logging failures without retrying:
// XpressNet has no echo to confirm delivery, so the bus poll cycle
// itself is the retry mechanism.
func (k *Kernel) write(msg message.Message) {
	log.WithField("logId", k.logID).WithField("frame", msg.String()).Debug("xpressnet: send")
	if _, err := k.transport.Write(msg); err != nil {
		log.WithError(err).WithField("logId", k.logID).Warn("xpressnet: write failed")
	}
}

// RequestLocoInfo asks the command station to report a locomotive's
// current state.
func (k *Kernel) RequestLocoInfo(address uint16, longAddress bool) {
	k.mu.Lock()
	k.lastRequestAddress = address
	k.mu.Unlock()
	k.write(message.LocoInfoRequest(address, longAddress))
}

// SetTrackPower turns track power on or off.
func (k *Kernel) SetTrackPower(on bool) {
	k.write(message.TrackPower(on))
}

// EmergencyStopAll halts every locomotive on the layout.
func (k *Kernel) EmergencyStopAll() {
	k.write(message.EmergencyStopAll())
}

// Protocols reports the wire protocols this kernel can drive decoders
// for: XpressNet only ever carries DCC.
func (k *Kernel) Protocols() []decoder.Protocol {
	return []decoder.Protocol{decoder.ProtocolDCC}
}

// AddressMinMax reports the addressable range for protocol: short
// addresses 1-99, long addresses 100-9999, matching the DCC convention
// XpressNet's address-high-byte flag encodes.
func (k *Kernel) AddressMinMax(protocol decoder.Protocol) (min, max uint16) {
	if protocol != decoder.ProtocolDCC {
		return 0, 0
	}
	return 1, 9999
}

func boolFunctions(dec *decoder.Decoder, count int) [29]bool {
	var out [29]bool
	for i := 0; i < count && i < 29; i++ {
		out[i] = dec.Function(i) == decoder.TriTrue
	}
	return out
}

// DecoderChanged translates one decoder state change into the narrowest
// XpressNet instruction that carries it, mirroring the dispatch the
// original XpressNet protocol driver used: a dedicated emergency-stop
// command when enabled and applicable, otherwise a speed-and-direction
// instruction sized to the decoder's configured speed-step family for
// throttle/direction/estop changes, or the function-group instruction
// matching the changed function's number for function changes.
func (k *Kernel) DecoderChanged(dec *decoder.Decoder, changes decoder.ChangeFlags, functionNumber int) {
	address, longAddress := dec.Address, dec.LongAddress

	if changes&decoder.ChangeEmergencyStop != 0 && dec.EmergencyStop() {
		if k.cfg.UseEmergencyStopLocomotiveCommand {
			k.write(message.EmergencyStopLocomotive(address, longAddress))
			return
		}
	}

	if changes&(decoder.ChangeThrottle|decoder.ChangeDirection|decoder.ChangeEmergencyStop) != 0 {
		steps := k.speedStepsFor(address)
		maxStep := steps
		if steps == 128 {
			maxStep = 126
		}
		speedStep := decoder.ThrottleToSpeedStep(dec.Throttle(), maxStep)

		dir := message.DirectionForward
		if dec.Direction() == decoder.DirectionReverse {
			dir = message.DirectionReverse
		}
		f0 := dec.Function(0) == decoder.TriTrue
		k.write(message.SpeedAndDirection(address, longAddress, steps, speedStep, dir, f0))
		return
	}

	if changes&decoder.ChangeFunction != 0 {
		switch {
		case functionNumber <= 4:
			k.write(message.FunctionGroup1(address, longAddress, boolFunctions(dec, 5)))
		case functionNumber <= 8:
			k.write(message.FunctionGroup2(address, longAddress, boolFunctions(dec, 9)))
		case functionNumber <= 12:
			k.write(message.FunctionGroup3(address, longAddress, boolFunctions(dec, 13)))
		case functionNumber <= 20 && k.cfg.UseRocoF13F20Command:
			k.write(message.RocoFunctionF13F20(address, longAddress, boolFunctions(dec, 21)))
		default:
			log.WithField("logId", k.logID).WithField("function", functionNumber).
				Warn("xpressnet: function number not supported by this command station")
		}
	}
}
