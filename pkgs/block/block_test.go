package block

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keskad/traintastic-go/pkgs/train"
)

func newTrain() *train.Train {
	return train.New(1.0 / 87)
}

func TestBlockAssignAndRemoveTrain(t *testing.T) {
	tr := newTrain()
	b := NewBlock("b1")

	assert.Equal(t, StateUnknown, b.State())
	require := assert.New(t)
	require.NoError(b.SetStateFree())
	require.Equal(StateFree, b.State())

	require.NoError(b.AssignTrain(tr))
	require.Equal(StateReserved, b.State())
	require.True(tr.Active())

	require.NoError(b.FlipTrain())
	require.Equal(StateOccupied, b.State())

	require.NoError(b.RemoveTrain(tr))
	require.Equal(StateFree, b.State())
	require.False(tr.Active())
}

func TestBlockAssignTrainRequiresFree(t *testing.T) {
	b := NewBlock("b1")
	err := b.AssignTrain(newTrain())
	assert.ErrorIs(t, err, ErrBlockNotFree)
}

func TestBlockRemoveTrainNotAssigned(t *testing.T) {
	b := NewBlock("b1")
	_ = b.SetStateFree()
	err := b.RemoveTrain(newTrain())
	assert.ErrorIs(t, err, ErrTrainNotInBlock)
}

func TestZoneAssignRemoveAppliesPolicy(t *testing.T) {
	r := NewRegistry()
	tr := newTrain()
	tr.AddVehicle(&train.RailVehicle{})

	b := r.NewBlock("b1")
	_ = b.SetStateFree()
	z := r.NewZone("z1")
	z.SetMute(true)
	z.SetNoSmoke(true)
	z.SetSpeedLimit(100.0)
	z.AddBlock(b)

	assert.False(t, tr.Mute())
	assert.False(t, tr.NoSmoke())
	assert.True(t, math.IsInf(tr.SpeedLimit(), 1))

	assert.NoError(t, b.AssignTrain(tr))
	assert.True(t, tr.Active())
	assert.True(t, tr.Mute())
	assert.True(t, tr.NoSmoke())
	assert.InDelta(t, 100.0, tr.SpeedLimit(), 1e-9)

	assert.NoError(t, b.RemoveTrain(tr))
	assert.False(t, tr.Active())
	assert.False(t, tr.Mute())
	assert.False(t, tr.NoSmoke())
	assert.True(t, math.IsInf(tr.SpeedLimit(), 1))
}

func TestZoneAssignRemoveEvents(t *testing.T) {
	r := NewRegistry()
	tr := newTrain()

	b := r.NewBlock("b1")
	_ = b.SetStateFree()
	z := r.NewZone("z1")
	z.AddBlock(b)

	var assigned, removed int
	z.Events.OnTrainAssigned = func(*train.Train, *Zone) { assigned++ }
	z.Events.OnTrainRemoved = func(*train.Train, *Zone) { removed++ }

	assert.NoError(t, b.AssignTrain(tr))
	assert.Equal(t, 1, assigned)
	assert.Equal(t, 0, removed)

	assert.NoError(t, b.RemoveTrain(tr))
	assert.Equal(t, 1, assigned)
	assert.Equal(t, 1, removed)
}

func TestZoneToggleWhileTrainPresent(t *testing.T) {
	r := NewRegistry()
	tr := newTrain()
	tr.AddVehicle(&train.RailVehicle{})

	b := r.NewBlock("b1")
	_ = b.SetStateFree()
	z := r.NewZone("z1")
	z.AddBlock(b)
	assert.NoError(t, b.AssignTrain(tr))

	z.SetMute(true)
	assert.True(t, tr.Mute())
	z.SetMute(false)
	assert.False(t, tr.Mute())
}

func TestSelectRouteReservesPathAndRejectsSharedBlock(t *testing.T) {
	r := NewRegistry()
	graph := Graph{
		"entry": {"mid"},
		"mid":   {"exit"},
	}
	blocks := map[string]*Block{}
	for _, id := range []string{"entry", "mid", "exit"} {
		b := r.NewBlock(id)
		_ = b.SetStateFree()
		blocks[id] = b
	}
	lookup := func(id string) *Block { return blocks[id] }

	t1 := newTrain()
	assert.NoError(t, blocks["entry"].AssignTrain(t1))

	path, err := SelectRoute(graph, lookup, "entry", "exit", t1)
	assert.NoError(t, err)
	assert.Equal(t, []*Block{blocks["entry"], blocks["mid"], blocks["exit"]}, path)
	assert.Equal(t, StateReserved, blocks["mid"].State())
	assert.Equal(t, StateReserved, blocks["exit"].State())

	// A second train trying to cross through the now-reserved "mid" block
	// must be refused, mirroring the crossing-tile NX scenario.
	graph2 := Graph{
		"entry2": {"mid"},
		"mid":    {"exit2"},
	}
	b2 := r.NewBlock("entry2")
	_ = b2.SetStateFree()
	bExit2 := r.NewBlock("exit2")
	_ = bExit2.SetStateFree()
	blocks["entry2"] = b2
	blocks["exit2"] = bExit2

	t2 := newTrain()
	assert.NoError(t, blocks["entry2"].AssignTrain(t2))

	_, err = SelectRoute(graph2, lookup, "entry2", "exit2", t2)
	assert.ErrorIs(t, err, ErrRouteBlockNotFree)
	assert.Equal(t, StateFree, blocks["exit2"].State())
}

func TestSelectRouteNoPath(t *testing.T) {
	r := NewRegistry()
	graph := Graph{"a": {}}
	a := r.NewBlock("a")
	_ = a.SetStateFree()
	lookup := func(id string) *Block {
		if id == "a" {
			return a
		}
		return nil
	}

	_, err := SelectRoute(graph, lookup, "a", "z", newTrain())
	assert.ErrorIs(t, err, ErrNoRoute)
}
