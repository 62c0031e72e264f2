package controllers

import (
	"fmt"

	"github.com/san-kum/simbridge/internal/state"
)

// Controller maps an observation to an action vector. t is seconds since
// the episode started.
type Controller interface {
	Compute(obs state.Vector, t float64) state.Vector
}

// Resetter is implemented by controllers that carry state between steps.
type Resetter interface {
	Reset()
}

// Params configures a PID; Index selects the observation slot it tracks.
type Params struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	Index  int
	// IntegralLimit caps the integral contribution; zero disables it.
	IntegralLimit float64
}

// New builds a controller by name for an action of size dim.
func New(name string, p Params, dim int, seed int64) (Controller, error) {
	switch name {
	case "zero", "none":
		return NewZero(dim), nil
	case "random":
		return NewRandom(dim, seed), nil
	case "pid":
		pid := NewPID(p.Kp, p.Ki, p.Kd, p.Target)
		pid.Index = p.Index
		pid.IntegralLimit = p.IntegralLimit
		return pid, nil
	default:
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
}

func Names() []string {
	return []string{"zero", "random", "pid"}
}
