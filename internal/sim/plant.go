package sim

import (
	"fmt"
	"sync"
)

// Plant advances a model in fixed steps while a control input is held. It
// is safe for concurrent use: commands arrive on one goroutine while
// another steps and reads the state.
type Plant struct {
	mu         sync.Mutex
	dyn        Dynamics
	integrator Integrator
	dt         float64

	x     State
	u     Control
	t     float64
	steps int
}

func NewPlant(dyn Dynamics, integrator Integrator, dt float64, x0 State) (*Plant, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %f", dt)
	}
	if len(x0) != dyn.StateDim() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(x0), dyn.StateDim())
	}
	return &Plant{
		dyn:        dyn,
		integrator: integrator,
		dt:         dt,
		x:          x0.Clone(),
		u:          make(Control, dyn.ControlDim()),
	}, nil
}

// SetControl holds u until the next call.
func (p *Plant) SetControl(u Control) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.u, u)
}

func (p *Plant) Control() Control {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(Control(nil), p.u...)
}

// Reset replaces the state and keeps the held control.
func (p *Plant) Reset(x State) error {
	if len(x) != p.dyn.StateDim() {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(x), p.dyn.StateDim())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x = x.Clone()
	return nil
}

// Advance integrates forward by duration in steps of dt. On a diverged
// state the plant keeps its last valid state and returns a *StepError.
func (p *Plant) Advance(duration float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for remaining := duration; remaining > 1e-12; remaining -= p.dt {
		dt := p.dt
		if remaining < dt {
			dt = remaining
		}
		next := p.integrator.Step(p.dyn, p.x, p.u, p.t, dt)
		if !next.IsValid() {
			return &StepError{Step: p.steps, Time: p.t, State: p.x.Clone(), Wrapped: ErrInvalidState}
		}
		p.x = next
		p.t += dt
		p.steps++
	}
	return nil
}

func (p *Plant) State() (State, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x.Clone(), p.t
}
