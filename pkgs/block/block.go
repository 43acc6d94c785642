// Package block models track occupancy: a Block is a physical track segment
// that a Train reserves, enters and leaves, and a Zone is a named group of
// blocks carrying bulk mute/no-smoke/speed-limit policy. Grounded on
// original_source/server/src/train/trainblockstatus.cpp and
// original_source/server/test/zone.cpp.
package block

import (
	"errors"
	"math"
	"sync"

	"github.com/keskad/traintastic-go/pkgs/train"
)

var (
	ErrBlockNotFree     = errors.New("block: not free")
	ErrBlockNotReserved = errors.New("block: not reserved")
	ErrTrainNotInBlock  = errors.New("block: train is not assigned to this block")
	ErrBlockNotInZone   = errors.New("block: block is not in this zone")
)

// State is a Block's occupancy state.
type State int

const (
	StateUnknown State = iota
	StateFree
	StateReserved
	StateOccupied
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateOccupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Direction is a train's heading through a block, relative to the block's
// own entry/exit sides.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionEntryToExit
	DirectionExitToEntry
)

// TrainBlockStatus is one train's occupancy entry within a Block.
type TrainBlockStatus struct {
	Block          *Block
	Train          *train.Train
	Identification string
	Direction      Direction
}

// Events are the callbacks a Block fires on its own state transitions.
type Events struct {
	OnBlockAssigned func(*Block, *train.Train)
	OnBlockReserved func(*Block, *train.Train)
	OnBlockEntered  func(*Block, *train.Train)
	OnBlockLeft     func(*Block, *train.Train)
	OnBlockRemoved  func(*Block, *train.Train)
}

// Block is a physical track segment identified by a tile position, holding
// an ordered list of TrainBlockStatus entries. States:
//
//	Unknown --setStateFree--> Free
//	Free --AssignTrain(t)--> Reserved (trains=[t])
//	Reserved --FlipTrain()--> Occupied
//	Occupied --(last train removed)--> Free
//	any --RemoveTrain(t)--> previous state without t
type Block struct {
	mu sync.Mutex

	ID   string
	Name string

	state  State
	trains []*TrainBlockStatus
	zones  []*Zone

	registry *Registry

	Events Events
}

// NewBlock creates a standalone block with no zone-policy registry; zone
// propagation is a no-op until the block is created via Registry.NewBlock
// or attached to zones whose Registry is non-nil.
func NewBlock(id string) *Block {
	return &Block{ID: id, state: StateUnknown}
}

func (b *Block) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trains returns the block's current occupancy entries in assignment order.
func (b *Block) Trains() []*TrainBlockStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*TrainBlockStatus, len(b.trains))
	copy(out, b.trains)
	return out
}

// Zones returns the zones this block belongs to.
func (b *Block) Zones() []*Zone {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Zone, len(b.zones))
	copy(out, b.zones)
	return out
}

// SetStateFree moves an Unknown or already-Free block to Free. Reserved and
// Occupied blocks must be vacated via RemoveTrain first.
func (b *Block) SetStateFree() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateReserved || b.state == StateOccupied {
		return ErrBlockNotFree
	}
	b.state = StateFree
	return nil
}

// AssignTrain reserves the block for t. The block must be Free.
func (b *Block) AssignTrain(t *train.Train) error {
	b.mu.Lock()
	if b.state != StateFree {
		b.mu.Unlock()
		return ErrBlockNotFree
	}
	status := &TrainBlockStatus{Block: b, Train: t, Direction: DirectionEntryToExit}
	b.trains = append(b.trains, status)
	b.state = StateReserved
	zones := append([]*Zone(nil), b.zones...)
	b.mu.Unlock()

	t.EnterBlock()

	if b.Events.OnBlockAssigned != nil {
		b.Events.OnBlockAssigned(b, t)
	}
	if b.Events.OnBlockReserved != nil {
		b.Events.OnBlockReserved(b, t)
	}

	if b.registry != nil {
		for _, z := range zones {
			b.registry.trainEnteredZone(z, t)
		}
	}
	return nil
}

// FlipTrain moves a Reserved block to Occupied, modelling the block sensor
// detecting the train's arrival. Grounded on test/board/path.cpp's
// post-assignTrain flipTrain() calls.
func (b *Block) FlipTrain() error {
	b.mu.Lock()
	if b.state != StateReserved || len(b.trains) == 0 {
		b.mu.Unlock()
		return ErrBlockNotReserved
	}
	b.state = StateOccupied
	t := b.trains[len(b.trains)-1].Train
	b.mu.Unlock()

	if b.Events.OnBlockEntered != nil {
		b.Events.OnBlockEntered(b, t)
	}
	return nil
}

// RemoveTrain removes t's occupancy entry from any state, freeing the block
// once no train remains.
func (b *Block) RemoveTrain(t *train.Train) error {
	b.mu.Lock()
	idx := -1
	for i, s := range b.trains {
		if s.Train == t {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return ErrTrainNotInBlock
	}
	b.trains = append(b.trains[:idx], b.trains[idx+1:]...)
	if len(b.trains) == 0 {
		b.state = StateFree
	}
	zones := append([]*Zone(nil), b.zones...)
	b.mu.Unlock()

	t.LeaveBlock()

	if b.Events.OnBlockLeft != nil {
		b.Events.OnBlockLeft(b, t)
	}
	if b.Events.OnBlockRemoved != nil {
		b.Events.OnBlockRemoved(b, t)
	}

	if b.registry != nil {
		for _, z := range zones {
			b.registry.trainLeftZone(z, t)
		}
	}
	return nil
}

// ZoneEvents are the callbacks a Zone fires as trains enter and leave it
// (aggregated across all of the zone's blocks, not per-block).
type ZoneEvents struct {
	OnTrainAssigned func(*train.Train, *Zone)
	OnTrainEntering func(*train.Train, *Zone)
	OnTrainEntered  func(*train.Train, *Zone)
	OnTrainLeaving  func(*train.Train, *Zone)
	OnTrainLeft     func(*train.Train, *Zone)
	OnTrainRemoved  func(*train.Train, *Zone)
}

// Zone is a named set of blocks carrying bulk mute/noSmoke/speedLimit
// policy. A train's effective policy is the OR/OR/min of the policies of
// every zone it currently occupies a block in.
type Zone struct {
	mu sync.Mutex

	ID   string
	Name string

	mute       bool
	noSmoke    bool
	speedLimit float64

	blocks []*Block

	registry *Registry

	Events ZoneEvents
}

// NewZone creates a standalone zone with no policy-propagation registry.
func NewZone(id string) *Zone {
	return &Zone{ID: id, speedLimit: math.Inf(1)}
}

func (z *Zone) Mute() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.mute
}

func (z *Zone) NoSmoke() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.noSmoke
}

func (z *Zone) SpeedLimit() float64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.speedLimit
}

// SetMute sets the zone's mute policy and recomputes every occupying
// train's effective policy.
func (z *Zone) SetMute(v bool) {
	z.mu.Lock()
	z.mute = v
	z.mu.Unlock()
	z.propagate()
}

// SetNoSmoke sets the zone's no-smoke policy and recomputes every occupying
// train's effective policy.
func (z *Zone) SetNoSmoke(v bool) {
	z.mu.Lock()
	z.noSmoke = v
	z.mu.Unlock()
	z.propagate()
}

// SetSpeedLimit sets the zone's speed limit (scale m/s, +Inf for none) and
// recomputes every occupying train's effective policy.
func (z *Zone) SetSpeedLimit(v float64) {
	z.mu.Lock()
	z.speedLimit = v
	z.mu.Unlock()
	z.propagate()
}

func (z *Zone) propagate() {
	if z.registry == nil {
		return
	}
	for _, t := range z.registry.trainsInZone(z) {
		z.registry.recomputeTrainPolicy(t)
	}
}

// Blocks returns the zone's member blocks.
func (z *Zone) Blocks() []*Block {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]*Block, len(z.blocks))
	copy(out, z.blocks)
	return out
}

func indexOfBlock(blocks []*Block, b *Block) int {
	for i, x := range blocks {
		if x == b {
			return i
		}
	}
	return -1
}

func indexOfZone(zones []*Zone, z *Zone) int {
	for i, x := range zones {
		if x == z {
			return i
		}
	}
	return -1
}

// AddBlock adds b to the zone. If the train currently occupies b, its
// effective policy is immediately recomputed to include this zone.
func (z *Zone) AddBlock(b *Block) {
	z.mu.Lock()
	if indexOfBlock(z.blocks, b) < 0 {
		z.blocks = append(z.blocks, b)
	}
	z.mu.Unlock()

	b.mu.Lock()
	if indexOfZone(b.zones, z) < 0 {
		b.zones = append(b.zones, z)
	}
	occupants := make([]*train.Train, 0, len(b.trains))
	for _, s := range b.trains {
		occupants = append(occupants, s.Train)
	}
	b.mu.Unlock()

	if z.registry == nil {
		return
	}
	for _, t := range occupants {
		z.registry.trainEnteredZone(z, t)
	}
}

// RemoveBlock removes b from the zone.
func (z *Zone) RemoveBlock(b *Block) error {
	z.mu.Lock()
	idx := indexOfBlock(z.blocks, b)
	if idx < 0 {
		z.mu.Unlock()
		return ErrBlockNotInZone
	}
	z.blocks = append(z.blocks[:idx], z.blocks[idx+1:]...)
	z.mu.Unlock()

	b.mu.Lock()
	if j := indexOfZone(b.zones, z); j >= 0 {
		b.zones = append(b.zones[:j], b.zones[j+1:]...)
	}
	occupants := make([]*train.Train, 0, len(b.trains))
	for _, s := range b.trains {
		occupants = append(occupants, s.Train)
	}
	b.mu.Unlock()

	if z.registry == nil {
		return nil
	}
	for _, t := range occupants {
		z.registry.trainLeftZone(z, t)
	}
	return nil
}

// Registry is the shared owner of a world's blocks and zones, and tracks
// which zones each train currently occupies so zone policy can be
// recomputed as an OR/OR/min across all of them. In the full system
// pkgs/world embeds one Registry per loaded world.
type Registry struct {
	mu            sync.Mutex
	trainZoneRefs map[*train.Train]map[*Zone]int
}

// NewRegistry creates an empty block/zone registry.
func NewRegistry() *Registry {
	return &Registry{trainZoneRefs: make(map[*train.Train]map[*Zone]int)}
}

// NewBlock creates a block owned by this registry.
func (r *Registry) NewBlock(id string) *Block {
	return &Block{ID: id, state: StateUnknown, registry: r}
}

// NewZone creates a zone owned by this registry.
func (r *Registry) NewZone(id string) *Zone {
	return &Zone{ID: id, speedLimit: math.Inf(1), registry: r}
}

func (r *Registry) trainEnteredZone(z *Zone, t *train.Train) {
	r.mu.Lock()
	refs, ok := r.trainZoneRefs[t]
	if !ok {
		refs = make(map[*Zone]int)
		r.trainZoneRefs[t] = refs
	}
	wasPresent := refs[z] > 0
	refs[z]++
	r.mu.Unlock()

	if !wasPresent {
		if z.Events.OnTrainAssigned != nil {
			z.Events.OnTrainAssigned(t, z)
		}
	} else {
		if z.Events.OnTrainEntering != nil {
			z.Events.OnTrainEntering(t, z)
		}
		if z.Events.OnTrainEntered != nil {
			z.Events.OnTrainEntered(t, z)
		}
	}
	r.recomputeTrainPolicy(t)
}

func (r *Registry) trainLeftZone(z *Zone, t *train.Train) {
	r.mu.Lock()
	refs := r.trainZoneRefs[t]
	remaining := -1
	if refs != nil {
		remaining = refs[z] - 1
		if remaining <= 0 {
			delete(refs, z)
			if len(refs) == 0 {
				delete(r.trainZoneRefs, t)
			}
		} else {
			refs[z] = remaining
		}
	}
	r.mu.Unlock()

	if remaining <= 0 {
		if z.Events.OnTrainRemoved != nil {
			z.Events.OnTrainRemoved(t, z)
		}
	} else {
		if z.Events.OnTrainLeaving != nil {
			z.Events.OnTrainLeaving(t, z)
		}
		if z.Events.OnTrainLeft != nil {
			z.Events.OnTrainLeft(t, z)
		}
	}
	r.recomputeTrainPolicy(t)
}

// trainsInZone lists every train currently holding at least one occupancy
// entry within z.
func (r *Registry) trainsInZone(z *Zone) []*train.Train {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*train.Train
	for t, refs := range r.trainZoneRefs {
		if refs[z] > 0 {
			out = append(out, t)
		}
	}
	return out
}

// recomputeTrainPolicy recomputes t's effective mute/noSmoke/speedLimit as
// the OR/OR/min across every zone it currently occupies, and pushes it down
// via train.Train.ApplyZonePolicy.
func (r *Registry) recomputeTrainPolicy(t *train.Train) {
	r.mu.Lock()
	refs := r.trainZoneRefs[t]
	zones := make([]*Zone, 0, len(refs))
	for z := range refs {
		zones = append(zones, z)
	}
	r.mu.Unlock()

	policy := train.ZonePolicy{SpeedLimit: math.Inf(1)}
	for _, z := range zones {
		z.mu.Lock()
		if z.mute {
			policy.Mute = true
		}
		if z.noSmoke {
			policy.NoSmoke = true
		}
		if z.speedLimit < policy.SpeedLimit {
			policy.SpeedLimit = z.speedLimit
		}
		z.mu.Unlock()
	}
	t.ApplyZonePolicy(policy)
}
