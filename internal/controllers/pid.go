package controllers

import (
	"math"

	"github.com/san-kum/simbridge/internal/state"
)

// PID drives observation slot Index towards Target. The derivative term acts
// on the measurement, so a setpoint change does not kick the elevator, and
// the output is clamped to the [-1, 1] actuator range.
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	Index  int
	// IntegralLimit bounds the magnitude of the integral contribution.
	// Zero leaves it unbounded.
	IntegralLimit float64

	integral float64
	prevMeas float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd, Target: target, first: true}
}

func (p *PID) Reset() {
	p.integral, p.prevMeas, p.prevT = 0, 0, 0
	p.first = true
}

func (p *PID) Compute(obs state.Vector, t float64) state.Vector {
	if p.Index < 0 || p.Index >= len(obs) {
		return state.Vector{0}
	}
	meas := obs[p.Index]
	err := p.Target - meas

	var rate float64
	if dt := t - p.prevT; !p.first && dt > 0 {
		p.integral = p.windup(p.integral + err*dt)
		rate = (meas - p.prevMeas) / dt
	}
	p.first = false
	p.prevMeas, p.prevT = meas, t

	return state.Vector{clampUnit(p.Kp*err + p.Ki*p.integral - p.Kd*rate)}
}

func (p *PID) windup(integral float64) float64 {
	if p.IntegralLimit <= 0 || p.Ki == 0 {
		return integral
	}
	bound := p.IntegralLimit / math.Abs(p.Ki)
	return math.Max(-bound, math.Min(bound, integral))
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
