// Package world owns the object arena every running layout is built from:
// interfaces, decoders, trains and the block/zone graph, all keyed by a
// stable identity so configuration, CLI commands and interface callbacks
// can all refer to the same object without threading pointers through
// every layer. A single goroutine (started by New, stopped by Close) is
// the only thing that ever touches this state; everything else reaches it
// by posting a function onto the world's task queue.
package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/keskad/traintastic-go/pkgs/block"
	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/train"
)

// ErrUnknownDecoderAddress is returned when an interface reports a change
// for an address no decoder in the arena is bound to.
var ErrUnknownDecoderAddress = errors.New("world: no decoder registered for this address")

// ErrDecoderNotAssignedToAVehicle is returned when an operation needs the
// rail vehicle a decoder drives, but the decoder was never attached to one.
var ErrDecoderNotAssignedToAVehicle = errors.New("world: decoder is not assigned to a rail vehicle")

// World is the object arena plus its single owning goroutine. Every field
// below is only ever read or written from run(), reached exclusively
// through post().
type World struct {
	log *log.Entry

	blocks *block.Registry

	interfaces         map[uuid.UUID]*Interface
	xpressnetInterfaces map[uuid.UUID]*XpressNetInterface
	decoders           map[uuid.UUID]*decoderEntry
	trains     map[uuid.UUID]*train.Train
	zones      map[uuid.UUID]*block.Zone
	blockByID  map[uuid.UUID]*block.Block

	decodersByAddress map[decoderKey]uuid.UUID

	tasks chan func()

	group  *errgroup.Group
	cancel context.CancelFunc

	tasksHandled uint64
}

// decoderEntry pairs a logical decoder with the rail vehicle (if any) it is
// currently bound to, so interface callbacks can reach the train that
// should react to a bus-originated throttle/function change.
type decoderEntry struct {
	id      uuid.UUID
	decoder *decoder.Decoder
	vehicle *train.RailVehicle
	train   *train.Train
}

// decoderKey identifies a decoder by the protocol+address pair an
// interface's wire traffic is addressed to.
type decoderKey struct {
	protocol decoder.Protocol
	address  uint16
}

// New creates an empty world and starts its task-processing goroutine.
func New() *World {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	w := &World{
		log:               log.WithField("component", "world"),
		blocks:            block.NewRegistry(),
		interfaces:          make(map[uuid.UUID]*Interface),
		xpressnetInterfaces: make(map[uuid.UUID]*XpressNetInterface),
		decoders:            make(map[uuid.UUID]*decoderEntry),
		trains:            make(map[uuid.UUID]*train.Train),
		zones:             make(map[uuid.UUID]*block.Zone),
		blockByID:         make(map[uuid.UUID]*block.Block),
		decodersByAddress: make(map[decoderKey]uuid.UUID),
		tasks:             make(chan func(), 256),
		cancel:            cancel,
	}
	w.group = group
	group.Go(func() error {
		w.run(ctx)
		return nil
	})
	return w
}

// Close stops the world goroutine and waits for it to drain.
func (w *World) Close() error {
	w.cancel()
	return w.group.Wait()
}

func (w *World) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.log.WithField("tasksHandled", w.tasksHandled).Debug("world: shutting down")
			return
		case task := <-w.tasks:
			task()
			w.tasksHandled++
			if w.tasksHandled%1000 == 0 {
				w.log.Debugf("world: processed %s tasks so far", humanize.Comma(int64(w.tasksHandled)))
			}
		}
	}
}

// post schedules fn to run on the world goroutine and blocks until it has
// run, returning whatever error fn produced. Interface callbacks (which
// run on their own transport goroutine) must never touch arena state
// except through post.
func (w *World) post(fn func() error) error {
	done := make(chan error, 1)
	select {
	case w.tasks <- func() { done <- fn() }:
	default:
		// Queue full: still enqueue, but blocking send so a burst of
		// interface callbacks cannot be silently dropped.
		w.tasks <- func() { done <- fn() }
	}
	return <-done
}

// NewTrain creates and registers a train with the given scale ratio,
// returning its arena identity.
func (w *World) NewTrain(scaleRatio float64) (uuid.UUID, *train.Train) {
	var id uuid.UUID
	var t *train.Train
	_ = w.post(func() error {
		id = uuid.New()
		t = train.New(scaleRatio)
		w.trains[id] = t
		return nil
	})
	return id, t
}

// Train returns the train registered under id, or nil.
func (w *World) Train(id uuid.UUID) *train.Train {
	var t *train.Train
	_ = w.post(func() error {
		t = w.trains[id]
		return nil
	})
	return t
}

// NewBlock creates and registers a block.
func (w *World) NewBlock(name string) (uuid.UUID, *block.Block) {
	var id uuid.UUID
	var b *block.Block
	_ = w.post(func() error {
		id = uuid.New()
		b = w.blocks.NewBlock(name)
		w.blockByID[id] = b
		return nil
	})
	return id, b
}

// NewZone creates and registers a zone.
func (w *World) NewZone(name string) (uuid.UUID, *block.Zone) {
	var id uuid.UUID
	var z *block.Zone
	_ = w.post(func() error {
		id = uuid.New()
		z = w.blocks.NewZone(name)
		w.zones[id] = z
		return nil
	})
	return id, z
}

// Block returns the block registered under id, or nil.
func (w *World) Block(id uuid.UUID) *block.Block {
	var b *block.Block
	_ = w.post(func() error {
		b = w.blockByID[id]
		return nil
	})
	return b
}

// Zone returns the zone registered under id, or nil.
func (w *World) Zone(id uuid.UUID) *block.Zone {
	var z *block.Zone
	_ = w.post(func() error {
		z = w.zones[id]
		return nil
	})
	return z
}

// RegisterDecoder binds a decoder to the arena under its protocol+address
// key, so a later interface callback addressed to that protocol/address
// can be routed back to it.
func (w *World) RegisterDecoder(dec *decoder.Decoder) uuid.UUID {
	var id uuid.UUID
	_ = w.post(func() error {
		id = uuid.New()
		w.decoders[id] = &decoderEntry{id: id, decoder: dec}
		w.decodersByAddress[decoderKey{protocol: dec.Protocol, address: dec.Address}] = id
		return nil
	})
	return id
}

// AssignVehicle attaches decoderID's decoder to vehicle, which must already
// belong to t; subsequent bus-originated throttle changes for this decoder
// are forwarded to t via train.HandleDecoderThrottle.
func (w *World) AssignVehicle(decoderID uuid.UUID, t *train.Train, vehicle *train.RailVehicle) error {
	return w.post(func() error {
		entry, ok := w.decoders[decoderID]
		if !ok {
			return fmt.Errorf("world: decoder %s: %w", decoderID, ErrUnknownDecoderAddress)
		}
		entry.vehicle = vehicle
		entry.train = t
		return nil
	})
}

// DecoderVehicle returns the rail vehicle decoderID is currently assigned
// to, or ErrDecoderNotAssignedToAVehicle if AssignVehicle was never called
// for it.
func (w *World) DecoderVehicle(decoderID uuid.UUID) (*train.RailVehicle, error) {
	var vehicle *train.RailVehicle
	var resultErr error
	_ = w.post(func() error {
		entry, ok := w.decoders[decoderID]
		if !ok {
			resultErr = fmt.Errorf("world: decoder %s: %w", decoderID, ErrUnknownDecoderAddress)
			return nil
		}
		if entry.vehicle == nil {
			resultErr = fmt.Errorf("world: decoder %s: %w", decoderID, ErrDecoderNotAssignedToAVehicle)
			return nil
		}
		vehicle = entry.vehicle
		return nil
	})
	return vehicle, resultErr
}

// decoderByAddressLocked must only be called from within a post() closure.
func (w *World) decoderByAddressLocked(protocol decoder.Protocol, address uint16) *decoderEntry {
	id, ok := w.decodersByAddress[decoderKey{protocol: protocol, address: address}]
	if !ok {
		return nil
	}
	return w.decoders[id]
}

// TrainsByID returns every train keyed by its arena identity, for CLI
// listing commands.
func (w *World) TrainsByID() map[uuid.UUID]*train.Train {
	var out map[uuid.UUID]*train.Train
	_ = w.post(func() error {
		out = make(map[uuid.UUID]*train.Train, len(w.trains))
		for id, t := range w.trains {
			out[id] = t
		}
		return nil
	})
	return out
}

// BlocksByID returns every block keyed by its arena identity.
func (w *World) BlocksByID() map[uuid.UUID]*block.Block {
	var out map[uuid.UUID]*block.Block
	_ = w.post(func() error {
		out = make(map[uuid.UUID]*block.Block, len(w.blockByID))
		for id, b := range w.blockByID {
			out[id] = b
		}
		return nil
	})
	return out
}

// ZonesByID returns every zone keyed by its arena identity.
func (w *World) ZonesByID() map[uuid.UUID]*block.Zone {
	var out map[uuid.UUID]*block.Zone
	_ = w.post(func() error {
		out = make(map[uuid.UUID]*block.Zone, len(w.zones))
		for id, z := range w.zones {
			out[id] = z
		}
		return nil
	})
	return out
}

// RegisterInterface adds an already-constructed interface to the arena
// under a new identity.
func (w *World) RegisterInterface(iface *Interface) uuid.UUID {
	var id uuid.UUID
	_ = w.post(func() error {
		id = uuid.New()
		w.interfaces[id] = iface
		return nil
	})
	return id
}

// Interface returns the interface registered under id, or nil.
func (w *World) Interface(id uuid.UUID) *Interface {
	var iface *Interface
	_ = w.post(func() error {
		iface = w.interfaces[id]
		return nil
	})
	return iface
}

// Interfaces returns every registered interface.
func (w *World) Interfaces() []*Interface {
	var out []*Interface
	_ = w.post(func() error {
		out = make([]*Interface, 0, len(w.interfaces))
		for _, iface := range w.interfaces {
			out = append(out, iface)
		}
		return nil
	})
	return out
}

// RegisterXpressNetInterface adds an already-constructed XpressNet
// interface to the arena under a new identity, the XpressNet counterpart
// of RegisterInterface.
func (w *World) RegisterXpressNetInterface(iface *XpressNetInterface) uuid.UUID {
	var id uuid.UUID
	_ = w.post(func() error {
		id = uuid.New()
		w.xpressnetInterfaces[id] = iface
		return nil
	})
	return id
}

// XpressNetInterfaces returns every registered XpressNet interface.
func (w *World) XpressNetInterfaces() []*XpressNetInterface {
	var out []*XpressNetInterface
	_ = w.post(func() error {
		out = make([]*XpressNetInterface, 0, len(w.xpressnetInterfaces))
		for _, iface := range w.xpressnetInterfaces {
			out = append(out, iface)
		}
		return nil
	})
	return out
}
