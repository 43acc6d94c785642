package world

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/ioboard"
	"github.com/keskad/traintastic-go/pkgs/loconet"
	"github.com/keskad/traintastic-go/pkgs/loconet/message"
	"github.com/keskad/traintastic-go/pkgs/wire"
	"github.com/keskad/traintastic-go/pkgs/xpressnet"
)

// Status is an interface's connection lifecycle state.
type Status int

const (
	StatusOffline Status = iota
	StatusInitializing
	StatusOnline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusInitializing:
		return "initializing"
	case StatusOnline:
		return "online"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Interface owns one LocoNet command station connection and exposes the
// Offline/Initializing/Online/Error lifecycle that sits above the
// kernel's own connect/disconnect mechanics. XpressNetInterface below is
// the counterpart for XpressNet connections; it needs no bridge since
// xpressnet.Kernel already implements decoder.Controller on its own.
type Interface struct {
	Name string

	kernel *loconet.Kernel
	bridge *kernelBridge

	mu     sync.Mutex
	status Status
	lastErr error

	onStatusChanged func(Status)
}

// decoderControllerAdapter lets kernelBridge (whose inbound decoder method
// is named DecoderChangedFromBus to avoid clashing with the outbound
// decoder.Controller method of the same struct) satisfy
// loconet.DecoderController.
type decoderControllerAdapter struct{ bridge *kernelBridge }

func (a decoderControllerAdapter) DecoderChanged(address uint16, speed uint8, direction message.Direction, functions [29]bool) {
	a.bridge.DecoderChangedFromBus(address, speed, direction, functions)
}

// NewLocoNetInterface builds an interface bound to a LocoNet kernel over
// transport. The kernel is not started (and the interface stays Offline)
// until SetOnline(true) is called.
func NewLocoNetInterface(w *World, name string, transport wire.Transport, cfg loconet.Config, simulation bool) *Interface {
	k := loconet.New(name, transport, cfg, simulation)
	bridge := newKernelBridge(w, name, func(address uint16, build func(uint8) message.Message) bool {
		k.SendToAddress(address, build)
		return true
	})

	k.SetDecoderController(decoderControllerAdapter{bridge: bridge})
	k.SetInputController(bridge)
	k.SetOutputController(bridge)
	k.SetIdentificationController(bridge)

	iface := &Interface{Name: name, kernel: k, bridge: bridge}
	k.SetOnGlobalPowerChanged(func(on bool) {
		log.WithField("interface", name).WithField("on", on).Info("world: track power changed")
	})
	return iface
}

// Status returns the interface's current lifecycle state.
func (i *Interface) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// LastError returns the error that drove the interface into StatusError, if any.
func (i *Interface) LastError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// SetOnStatusChanged registers a callback invoked whenever the lifecycle
// state transitions.
func (i *Interface) SetOnStatusChanged(f func(Status)) { i.onStatusChanged = f }

// SetOnline brings the interface up or down. Bringing it up opens the
// transport and starts the kernel's read loop; the interface is
// Initializing for the duration of Start and Online once it returns
// without error, or Error otherwise. Bringing it down stops the kernel and
// returns to Offline regardless of prior state.
func (i *Interface) SetOnline(online bool) error {
	if !online {
		i.setStatus(StatusOffline)
		if i.kernel == nil {
			return nil
		}
		return i.kernel.Stop()
	}

	i.setStatus(StatusInitializing)
	if err := i.kernel.Start(); err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		i.setStatus(StatusError)
		return fmt.Errorf("world: interface %q failed to come online: %w", i.Name, err)
	}
	i.setStatus(StatusOnline)
	return nil
}

func (i *Interface) setStatus(s Status) {
	i.mu.Lock()
	i.status = s
	i.mu.Unlock()
	if i.onStatusChanged != nil {
		i.onStatusChanged(s)
	}
}

// Kernel exposes the underlying LocoNet kernel for operations (LNCV
// sessions, SetState) that have no protocol-neutral equivalent yet.
func (i *Interface) Kernel() *loconet.Kernel { return i.kernel }

// BindOutput registers an accessory output with this interface's bridge so
// its domain-level ioboard.Output tracks bus-observed changes and can issue
// outbound commands through the kernel.
func (i *Interface) BindOutput(address uint16) *ioboard.Output {
	out := ioboard.NewOutput(i.kernel, ioboard.Binding{Address: address})
	i.bridge.RegisterOutput(address, out)
	return out
}

// BindInput registers a sensor input with this interface's bridge.
func (i *Interface) BindInput(address uint16) *ioboard.Input {
	in := ioboard.NewInput(i.bridge, ioboard.Binding{Address: address})
	i.bridge.RegisterInput(address, in)
	return in
}

// BindIdentification registers a transponder detector with this interface's
// bridge. ioboard.IdentificationController uses ioboard.Direction while the
// kernel-facing side of the bridge speaks message.Direction, so no single
// adapter type satisfies both; the bridge updates the Identification
// directly via Report, so no controller needs to be bound here.
func (i *Interface) BindIdentification(address uint16) *ioboard.Identification {
	ident := ioboard.NewIdentification(nil, ioboard.Binding{Address: address})
	i.bridge.RegisterIdentification(address, ident)
	return ident
}

// XpressNetInterface owns one XpressNet command station connection.
// XpressNet, as this layout driver speaks it, only carries locomotive
// drive/function instructions and loco-info queries (§6 Non-goals: no
// accessory or feedback bus), so unlike Interface it needs no bridge and
// no Bind*/ioboard wiring: xpressnet.Kernel already satisfies
// decoder.Controller directly, so decoders are registered with it as
// their controller with no adapter in between.
type XpressNetInterface struct {
	Name string

	kernel *xpressnet.Kernel

	mu      sync.Mutex
	status  Status
	lastErr error

	onStatusChanged func(Status)
}

// NewXpressNetInterface builds an interface bound to an XpressNet kernel
// over transport. The kernel is not started (and the interface stays
// Offline) until SetOnline(true) is called.
func NewXpressNetInterface(name string, transport wire.Transport, cfg xpressnet.Config) *XpressNetInterface {
	k := xpressnet.New(name, transport, cfg)
	return &XpressNetInterface{Name: name, kernel: k}
}

// Status returns the interface's current lifecycle state.
func (x *XpressNetInterface) Status() Status {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status
}

// LastError returns the error that drove the interface into StatusError, if any.
func (x *XpressNetInterface) LastError() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastErr
}

// SetOnStatusChanged registers a callback invoked whenever the lifecycle
// state transitions.
func (x *XpressNetInterface) SetOnStatusChanged(f func(Status)) { x.onStatusChanged = f }

// SetOnline brings the interface up or down, mirroring Interface.SetOnline.
func (x *XpressNetInterface) SetOnline(online bool) error {
	if !online {
		x.setStatus(StatusOffline)
		if x.kernel == nil {
			return nil
		}
		return x.kernel.Stop()
	}

	x.setStatus(StatusInitializing)
	if err := x.kernel.Start(); err != nil {
		x.mu.Lock()
		x.lastErr = err
		x.mu.Unlock()
		x.setStatus(StatusError)
		return fmt.Errorf("world: xpressnet interface %q failed to come online: %w", x.Name, err)
	}
	x.setStatus(StatusOnline)
	return nil
}

func (x *XpressNetInterface) setStatus(s Status) {
	x.mu.Lock()
	x.status = s
	x.mu.Unlock()
	if x.onStatusChanged != nil {
		x.onStatusChanged(s)
	}
}

// Kernel exposes the underlying XpressNet kernel for operations (track
// power, emergency stop, loco-info queries) that have no protocol-neutral
// equivalent yet.
func (x *XpressNetInterface) Kernel() *xpressnet.Kernel { return x.kernel }
