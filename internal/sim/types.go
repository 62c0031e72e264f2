// Package sim steps a continuous-time plant for the bundled simulator.
package sim

import (
	"errors"
	"fmt"
	"math"
)

// State is a plant state vector; its layout is defined by the model.
type State []float64

// Control is the actuator input held between steps.
type Control []float64

func (s State) Clone() State {
	return append(State(nil), s...)
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t float64, dt float64) State
}

var (
	ErrInvalidState      = errors.New("sim: state diverged to NaN or Inf")
	ErrDimensionMismatch = errors.New("sim: state size does not match the model")
)

// StepError reports the step a plant failed at. State is the last valid
// state, which the plant keeps.
type StepError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d at t=%.3fs: %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error { return e.Wrapped }
