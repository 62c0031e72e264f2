// Package observe derives task-specific observation vectors from the state
// cache.
//
// A [Projector] pulls raw slots through an [state.ObservationSpec] and fills
// its sentinel slots with values computed from other slots. Projectors are
// stateless: the same document and spec always give the same vector.
package observe

import (
	"fmt"
	"math"

	"github.com/san-kum/simbridge/internal/state"
)

// Reader is the read side of the state cache used by projectors.
type Reader interface {
	Observation(spec state.ObservationSpec) state.Vector
}

type Projector interface {
	Name() string
	Spec() state.ObservationSpec
	Project(r Reader) state.Vector
}

// DerivedAngle returns atan(rateA/rateB) in radians, or 0 when rateB is 0 so
// that a stationary source never injects NaN into the observation.
func DerivedAngle(rateA, rateB float64) float64 {
	if rateB == 0 {
		return 0
	}
	return math.Atan(rateA / rateB)
}

func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// Derivation computes one sentinel slot from two raw slots of the same
// vector.
type Derivation struct {
	Slot      int
	Numerator int
	Divisor   int
	Degrees   bool
}

func (d Derivation) apply(obs state.Vector) {
	angle := DerivedAngle(obs[d.Numerator], obs[d.Divisor])
	if d.Degrees {
		angle = RadToDeg(angle)
	}
	obs[d.Slot] = angle
}

// Generic is a projector assembled from a spec and a list of derivations.
type Generic struct {
	name        string
	spec        state.ObservationSpec
	derivations []Derivation
}

func NewGeneric(name string, spec state.ObservationSpec, derivations ...Derivation) (*Generic, error) {
	for _, d := range derivations {
		for _, idx := range []int{d.Slot, d.Numerator, d.Divisor} {
			if idx < 0 || idx >= len(spec) {
				return nil, fmt.Errorf("observe: %s: slot %d out of range [0,%d)", name, idx, len(spec))
			}
		}
		if !spec[d.Slot].IsDerived() {
			return nil, fmt.Errorf("observe: %s: slot %d is %q, not a derived slot", name, d.Slot, spec[d.Slot])
		}
	}
	return &Generic{name: name, spec: spec, derivations: derivations}, nil
}

func (g *Generic) Name() string                { return g.name }
func (g *Generic) Spec() state.ObservationSpec { return g.spec }

func (g *Generic) Project(r Reader) state.Vector {
	obs := r.Observation(g.spec)
	for _, d := range g.derivations {
		d.apply(obs)
	}
	return obs
}

// slotNamer is implemented by projectors that name their derived slots.
type slotNamer interface {
	derivedLabels(labels []string)
}

// Labels names each slot; derived slots are named after their derivation.
// Types embedding a built-in projector inherit its names.
func Labels(p Projector) []string {
	labels := p.Spec().Labels()
	if n, ok := p.(slotNamer); ok {
		n.derivedLabels(labels)
	}
	return labels
}

func (g *Generic) derivedLabels(labels []string) {
	for _, d := range g.derivations {
		labels[d.Slot] = fmt.Sprintf("atan(%s/%s)", labels[d.Numerator], labels[d.Divisor])
	}
}
