package train

import "github.com/keskad/traintastic-go/pkgs/decoder"

// RailVehicle is one physical unit of a Train: a locomotive, wagon or
// carriage. A powered vehicle owns a Decoder and a SpeedCurve; an
// unpowered vehicle contributes only length and mass.
type RailVehicle struct {
	Length float64
	Mass   float64
	MaxSpeed float64

	// InvertDirection flips this vehicle's direction relative to the
	// train's nominal direction, e.g. a locomotive coupled "backwards".
	InvertDirection bool

	Decoder    *decoder.Decoder
	SpeedCurve *SpeedCurve

	// Mute and NoSmoke are pushed down from the train's zone policy
	// (pkgs/block); they don't affect the decoder itself, only whatever
	// sound/smoke-unit functions the owning application maps them to.
	Mute    bool
	NoSmoke bool

	lastTrainSpeedStep uint8
	lastSetDirection   decoder.Direction
}

// Powered reports whether this vehicle has its own decoder.
func (v *RailVehicle) Powered() bool { return v.Decoder != nil }

// EffectiveDirection returns dir as seen by this vehicle's decoder, taking
// InvertDirection into account.
func (v *RailVehicle) EffectiveDirection(dir decoder.Direction) decoder.Direction {
	if v.InvertDirection {
		return dir.Opposite()
	}
	return dir
}
