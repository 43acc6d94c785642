package ioboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOutputController struct {
	lastAddress uint16
	lastThrown  bool
	reject      bool
}

func (f *fakeOutputController) SetOutput(address uint16, thrown bool) bool {
	if f.reject {
		return false
	}
	f.lastAddress, f.lastThrown = address, thrown
	return true
}

func TestOutputSetThrown(t *testing.T) {
	ctrl := &fakeOutputController{}
	out := NewOutput(ctrl, Binding{Address: 12})

	assert.NoError(t, out.SetThrown(true))
	assert.Equal(t, uint16(12), ctrl.lastAddress)
	assert.True(t, ctrl.lastThrown)
	assert.Equal(t, TriTrue, out.Value())
}

func TestOutputSetThrownRejected(t *testing.T) {
	ctrl := &fakeOutputController{reject: true}
	out := NewOutput(ctrl, Binding{Address: 12})

	assert.Error(t, out.SetThrown(true))
	assert.Equal(t, TriUndefined, out.Value())
}

func TestInputSetValue(t *testing.T) {
	in := NewInput(nil, Binding{Address: 5})
	assert.Equal(t, TriUndefined, in.Value())
	in.SetValue(true)
	assert.Equal(t, TriTrue, in.Value())
}

func TestIdentificationReport(t *testing.T) {
	ident := NewIdentification(nil, Binding{Address: 7})
	ident.Report(1234, true, DirectionForward)

	last := ident.Last()
	assert.Equal(t, uint16(1234), last.Identifier)
	assert.True(t, last.Present)
	assert.Equal(t, DirectionForward, last.Direction)
}
